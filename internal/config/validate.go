package config

// ValidationResult separates fatal problems (block startup) from warnings
// (logged, startup continues).
type ValidationResult struct {
	Fatals   []string
	Warnings []string
}

// HasFatals reports whether any fatal issue was recorded.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// Validate checks cfg for fatal configuration errors (conflicting ports,
// empty stream timeout) and non-fatal warnings (no applications configured).
func (c *Config) Validate() ValidationResult {
	var result ValidationResult

	ports := map[string]uint16{
		"webserver.port":       c.Webserver.Port,
		"webserver.port_https": c.Webserver.PortHTTPS,
		"stream.port":          c.Stream.Port,
		"stream.video.port":    c.Stream.Video.Port,
		"stream.audio.port":    c.Stream.Audio.Port,
		"stream.control.port":  c.Stream.Control.Port,
	}
	seen := make(map[uint16]string, len(ports))
	for name, port := range ports {
		if port == 0 {
			result.Fatals = append(result.Fatals, name+" must not be 0")
			continue
		}
		if other, ok := seen[port]; ok {
			result.Fatals = append(result.Fatals, name+" conflicts with "+other+" on port "+itoa(port))
			continue
		}
		seen[port] = name
	}

	if c.Stream.Video.FECPercentage > 100 {
		result.Fatals = append(result.Fatals, "stream.video.fec_percentage must not exceed 100")
	}

	if c.State == "" {
		result.Fatals = append(result.Fatals, "state must point at a writable file path")
	}

	if c.StreamTimeout == 0 {
		result.Fatals = append(result.Fatals, "stream_timeout must be greater than 0")
	}

	if !c.Webserver.AutoGenerate {
		if c.Webserver.Certificate == "" || c.Webserver.PrivateKey == "" {
			result.Fatals = append(result.Fatals, "webserver.certificate/private_key must be set when auto_generate_certificate is disabled")
		}
	}

	if len(c.Applications) == 0 {
		result.Warnings = append(result.Warnings, "no applications configured, clients will see an empty app list")
	}

	return result
}

func itoa(v uint16) string {
	if v == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
