package bridge

// Bridge firmware commands
const (
	CmdSync        = 0x01
	CmdISPEnable   = 0x10
	CmdISPDisable  = 0x11
	CmdISPTransfer = 0x12
	CmdReset       = 0x13
	CmdI2CBegin    = 0x20
	CmdI2CRelease  = 0x21
	CmdI2CWrite    = 0x22
	CmdI2CRequest  = 0x23
)

// Direction byte values
const (
	DirRequest  = 0x00
	DirResponse = 0x01
)

// MaxTransfer is the largest ISP_TRANSFER payload the bridge accepts.
const MaxTransfer = 64

// CommandName returns human-readable name for a bridge command
func CommandName(cmd byte) string {
	switch cmd {
	case CmdSync:
		return "SYNC"
	case CmdISPEnable:
		return "ISP_ENABLE"
	case CmdISPDisable:
		return "ISP_DISABLE"
	case CmdISPTransfer:
		return "ISP_TRANSFER"
	case CmdReset:
		return "RESET"
	case CmdI2CBegin:
		return "I2C_BEGIN"
	case CmdI2CRelease:
		return "I2C_RELEASE"
	case CmdI2CWrite:
		return "I2C_WRITE"
	case CmdI2CRequest:
		return "I2C_REQUEST"
	default:
		return "UNKNOWN"
	}
}

// Error codes reported by the bridge firmware
const (
	ErrInvalidMessage = 0x05
	ErrFailedToAct    = 0x06
	ErrInvalidCRC     = 0x07
	ErrBusDisabled    = 0x08
	ErrTooLong        = 0x09
	ErrI2CNack        = 0x0A
)

// ErrorMessage returns human-readable error message
func ErrorMessage(code byte) string {
	switch code {
	case ErrInvalidMessage:
		return "invalid message"
	case ErrFailedToAct:
		return "failed to act"
	case ErrInvalidCRC:
		return "invalid checksum"
	case ErrBusDisabled:
		return "ISP bus disabled"
	case ErrTooLong:
		return "transfer too long"
	case ErrI2CNack:
		return "I2C not acknowledged"
	default:
		return "unknown error"
	}
}
