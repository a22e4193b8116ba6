package input

// Linux evdev key codes (input-event-codes.h) for everything the virtual-key
// table maps onto.
const (
	keyEsc              uint16 = 1
	key1                uint16 = 2
	key2                uint16 = 3
	key3                uint16 = 4
	key4                uint16 = 5
	key5                uint16 = 6
	key6                uint16 = 7
	key7                uint16 = 8
	key8                uint16 = 9
	key9                uint16 = 10
	key0                uint16 = 11
	keyMinus            uint16 = 12
	keyEqual            uint16 = 13
	keyBackspace        uint16 = 14
	keyTab              uint16 = 15
	keyQ                uint16 = 16
	keyW                uint16 = 17
	keyE                uint16 = 18
	keyR                uint16 = 19
	keyT                uint16 = 20
	keyY                uint16 = 21
	keyU                uint16 = 22
	keyI                uint16 = 23
	keyO                uint16 = 24
	keyP                uint16 = 25
	keyLeftBrace        uint16 = 26
	keyRightBrace       uint16 = 27
	keyEnter            uint16 = 28
	keyLeftCtrl         uint16 = 29
	keyA                uint16 = 30
	keyS                uint16 = 31
	keyD                uint16 = 32
	keyF                uint16 = 33
	keyG                uint16 = 34
	keyH                uint16 = 35
	keyJ                uint16 = 36
	keyK                uint16 = 37
	keyL                uint16 = 38
	keySemicolon        uint16 = 39
	keyApostrophe       uint16 = 40
	keyGrave            uint16 = 41
	keyLeftShift        uint16 = 42
	keyBackslash        uint16 = 43
	keyZ                uint16 = 44
	keyX                uint16 = 45
	keyC                uint16 = 46
	keyV                uint16 = 47
	keyB                uint16 = 48
	keyN                uint16 = 49
	keyM                uint16 = 50
	keyComma            uint16 = 51
	keyDot              uint16 = 52
	keySlash            uint16 = 53
	keyRightShift       uint16 = 54
	keyKPAsterisk       uint16 = 55
	keyLeftAlt          uint16 = 56
	keySpace            uint16 = 57
	keyCapsLock         uint16 = 58
	keyF1               uint16 = 59
	keyF2               uint16 = 60
	keyF3               uint16 = 61
	keyF4               uint16 = 62
	keyF5               uint16 = 63
	keyF6               uint16 = 64
	keyF7               uint16 = 65
	keyF8               uint16 = 66
	keyF9               uint16 = 67
	keyF10              uint16 = 68
	keyNumLock          uint16 = 69
	keyScrollLock       uint16 = 70
	keyKP7              uint16 = 71
	keyKP8              uint16 = 72
	keyKP9              uint16 = 73
	keyKPMinus          uint16 = 74
	keyKP4              uint16 = 75
	keyKP5              uint16 = 76
	keyKP6              uint16 = 77
	keyKPPlus           uint16 = 78
	keyKP1              uint16 = 79
	keyKP2              uint16 = 80
	keyKP3              uint16 = 81
	keyKP0              uint16 = 82
	keyKPDot            uint16 = 83
	key102nd            uint16 = 86
	keyF11              uint16 = 87
	keyF12              uint16 = 88
	keyKatakana         uint16 = 90
	keyKatakanaHiragana uint16 = 93
	keyKPEnter          uint16 = 96
	keyRightCtrl        uint16 = 97
	keyKPSlash          uint16 = 98
	keySysRq            uint16 = 99
	keyRightAlt         uint16 = 100
	keyHome             uint16 = 102
	keyUp               uint16 = 103
	keyPageUp           uint16 = 104
	keyLeft             uint16 = 105
	keyRight            uint16 = 106
	keyEnd              uint16 = 107
	keyDown             uint16 = 108
	keyPageDown         uint16 = 109
	keyInsert           uint16 = 110
	keyDelete           uint16 = 111
	keyPause            uint16 = 119
	keyKPComma          uint16 = 121
	keyHangeul          uint16 = 122
	keyHanja            uint16 = 123
	keyLeftMeta         uint16 = 125
	keyRightMeta        uint16 = 126
	keyCompose          uint16 = 127
	keyHelp             uint16 = 138
	keySleep            uint16 = 142
	keyF13              uint16 = 183
	keyF14              uint16 = 184
	keyF15              uint16 = 185
	keyF16              uint16 = 186
	keyF17              uint16 = 187
	keyF18              uint16 = 188
	keyF19              uint16 = 189
	keyF20              uint16 = 190
	keyF21              uint16 = 191
	keyF22              uint16 = 192
	keyF23              uint16 = 193
	keyF24              uint16 = 194
	keyPrint            uint16 = 210
	keySelect           uint16 = 353
	keyClear            uint16 = 355
)

// keymap translates NVSTREAM virtual-key codes (Windows VKEY values, masked
// to their low byte) to evdev scancodes. The table mirrors the conversion
// table Moonlight-family hosts share; entries a client never sends on this
// platform are still present so the mapping stays comparable across
// implementations.
var keymap = map[byte]uint16{
	0x08: keyBackspace,
	0x09: keyTab,
	0x0c: keyClear,
	0x0d: keyEnter,
	0x10: keyLeftShift,
	0x11: keyLeftCtrl,
	0x12: keyLeftAlt,
	0x13: keyPause,
	0x14: keyCapsLock,
	0x15: keyKatakanaHiragana,
	0x16: keyHangeul,
	0x17: keyHanja,
	0x19: keyKatakana,
	0x1b: keyEsc,
	0x20: keySpace,
	0x21: keyPageUp,
	0x22: keyPageDown,
	0x23: keyEnd,
	0x24: keyHome,
	0x25: keyLeft,
	0x26: keyUp,
	0x27: keyRight,
	0x28: keyDown,
	0x29: keySelect,
	0x2a: keyPrint,
	0x2c: keySysRq,
	0x2d: keyInsert,
	0x2e: keyDelete,
	0x2f: keyHelp,
	0x30: key0,
	0x31: key1,
	0x32: key2,
	0x33: key3,
	0x34: key4,
	0x35: key5,
	0x36: key6,
	0x37: key7,
	0x38: key8,
	0x39: key9,
	0x41: keyA,
	0x42: keyB,
	0x43: keyC,
	0x44: keyD,
	0x45: keyE,
	0x46: keyF,
	0x47: keyG,
	0x48: keyH,
	0x49: keyI,
	0x4a: keyJ,
	0x4b: keyK,
	0x4c: keyL,
	0x4d: keyM,
	0x4e: keyN,
	0x4f: keyO,
	0x50: keyP,
	0x51: keyQ,
	0x52: keyR,
	0x53: keyS,
	0x54: keyT,
	0x55: keyU,
	0x56: keyV,
	0x57: keyW,
	0x58: keyX,
	0x59: keyY,
	0x5a: keyZ,
	0x5b: keyLeftMeta,
	0x5c: keyRightMeta,
	0x5d: keyCompose,
	0x5f: keySleep,
	0x60: keyKP0,
	0x61: keyKP1,
	0x62: keyKP2,
	0x63: keyKP3,
	0x64: keyKP4,
	0x65: keyKP5,
	0x66: keyKP6,
	0x67: keyKP7,
	0x68: keyKP8,
	0x69: keyKP9,
	0x6a: keyKPAsterisk,
	0x6b: keyKPPlus,
	0x6c: keyKPComma,
	0x6d: keyKPMinus,
	0x6e: keyKPDot,
	0x6f: keyKPSlash,
	0x70: keyF1,
	0x71: keyF2,
	0x72: keyF3,
	0x73: keyF4,
	0x74: keyF5,
	0x75: keyF6,
	0x76: keyF7,
	0x77: keyF8,
	0x78: keyF9,
	0x79: keyF10,
	0x7a: keyF11,
	0x7b: keyF12,
	0x7c: keyF13,
	0x7d: keyF14,
	0x7e: keyF15,
	0x7f: keyF16,
	0x80: keyF17,
	0x81: keyF18,
	0x82: keyF19,
	0x83: keyF20,
	0x84: keyF21,
	0x85: keyF22,
	0x86: keyF23,
	0x87: keyF24,
	0x90: keyNumLock,
	0x91: keyScrollLock,
	0xa0: keyLeftShift,
	0xa1: keyRightShift,
	0xa2: keyLeftCtrl,
	0xa3: keyRightCtrl,
	0xa4: keyLeftAlt,
	0xa5: keyRightAlt,
	0xba: keySemicolon,
	0xbb: keyEqual,
	0xbc: keyComma,
	0xbd: keyMinus,
	0xbe: keyDot,
	0xbf: keySlash,
	0xc0: keyGrave,
	0xdb: keyLeftBrace,
	0xdc: keyBackslash,
	0xdd: keyRightBrace,
	0xde: keyApostrophe,
	0xe2: key102nd,
}
