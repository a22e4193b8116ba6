package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hgaiser/moonshine/internal/applist"
	"github.com/hgaiser/moonshine/internal/collectors"
	"github.com/hgaiser/moonshine/internal/config"
	moonshinecrypto "github.com/hgaiser/moonshine/internal/crypto"
	"github.com/hgaiser/moonshine/internal/logging"
	"github.com/hgaiser/moonshine/internal/mdnspublish"
	"github.com/hgaiser/moonshine/internal/netdiag"
	"github.com/hgaiser/moonshine/internal/pairing"
	"github.com/hgaiser/moonshine/internal/rtsp"
	"github.com/hgaiser/moonshine/internal/session"
	"github.com/hgaiser/moonshine/internal/shutdown"
	"github.com/hgaiser/moonshine/internal/video/fec"
	"github.com/hgaiser/moonshine/internal/webserver"
	"github.com/hgaiser/moonshine/internal/webui"
)

var version = "0.1.0"

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "moonshine <config-file>",
	Short: "Moonshine game streaming host",
	Long: `Moonshine - a self-hosted game streaming host for Moonlight clients.

The single argument is the path to the configuration file. If the file does
not exist, a default configuration is generated at that path.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runHost(args[0])
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Moonshine v%s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runHost(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logging.Init(cfg.Logging.Format, cfg.Logging.Level, os.Stdout)

	log.Info("moonshine starting", "version", version, "config", cfgPath)

	identity, err := moonshinecrypto.LoadOrGenerateHostIdentity(cfg.Webserver.Certificate, cfg.Webserver.PrivateKey, cfg.Webserver.AutoGenerate)
	if err != nil {
		return fmt.Errorf("load host certificate: %w", err)
	}

	store, err := pairing.LoadFileStore(cfg.State)
	if err != nil {
		return fmt.Errorf("load state file: %w", err)
	}
	log.Info("host identity loaded", "unique_id", store.UniqueID())

	apps, err := applist.Load(cfg, cfg.ApplicationCatalog)
	if err != nil {
		return fmt.Errorf("load application list: %w", err)
	}

	if iface, err := netdiag.PrimaryInterface(); err == nil {
		log.Info("primary network interface", "name", iface.Name, "mac", iface.MAC, "ip", iface.IP)
	} else {
		log.Warn("no primary network interface found", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pairingManager := pairing.NewManager(identity, store)
	codecs := fec.NewCache()
	sessionManager := session.NewManager(cfg, apps, codecs)
	stats := collectors.NewHostStats()

	web := webserver.New(cfg, identity, pairingManager, store, sessionManager, stats, apps)
	negotiator := rtsp.New(cfg, sessionManager)
	statsServer := webui.New(cfg.Webserver.StatsPort, sessionManager, stats)

	publisher, err := mdnspublish.Publish(cfg.Name, int(cfg.Webserver.Port))
	if err != nil {
		// Discovery is a convenience; clients can still connect by address.
		log.Warn("failed to publish mdns service", "error", err)
	}

	mgr := shutdown.New(ctx)
	mgr.Go(sessionManager.Run)
	mgr.Go(web.ListenAndServe)
	mgr.Go(negotiator.ListenAndServe)
	mgr.Go(statsServer.ListenAndServe)
	if publisher != nil {
		mgr.Go(publisher.Run)
	}

	log.Info("moonshine ready",
		"http_port", cfg.Webserver.Port,
		"https_port", cfg.Webserver.PortHTTPS,
		"rtsp_port", cfg.Stream.Port)

	<-mgr.Done()
	if reason := mgr.Reason(); reason != nil && ctx.Err() == nil {
		mgr.Wait()
		return fmt.Errorf("fatal error: %w", reason)
	}

	log.Info("shutting down")
	mgr.Wait()
	return nil
}
