package protocol

// ISP opcodes. Several commands share the 0xAC opcode and are told apart by
// the sub-opcode carried in the second byte of the frame.
const (
	CmdProgramEnable = 0xAC
	CmdChipErase     = 0xAC
	CmdWriteLock     = 0xAC
	CmdWriteFuse     = 0xAC

	CmdLoadFlashLow   = 0x40
	CmdLoadFlashHigh  = 0x48
	CmdWriteFlashPage = 0x4C
	CmdReadFlashLow   = 0x20
	CmdReadFlashHigh  = 0x28

	CmdLoadEEPROM      = 0xC1
	CmdWriteEEPROMPage = 0xC2
	CmdReadEEPROM      = 0xA0
	CmdWriteEEPROM     = 0xC0

	CmdReadLock        = 0x58
	CmdReadSignature   = 0x30
	CmdReadFuseLow     = 0x50
	CmdReadFuseHigh    = 0x58
	CmdReadFuseExt     = 0x50
	CmdReadCalibration = 0x38
	CmdPollBusy        = 0xF0
)

// Sub-opcodes for the 0xAC family.
const (
	SubProgramEnable = 0x53
	SubChipErase     = 0x80
	SubWriteLock     = 0xE0
	SubWriteFuseLow  = 0xA0
	SubWriteFuseHigh = 0xA8
	SubWriteFuseExt  = 0xA4
)

// Selector bytes for the fuse reads. The high fuse shares its opcode with the
// lock-bit read and the extended fuse shares its opcode with the low fuse read.
const (
	SelFuseLow  = 0x00
	SelFuseHigh = 0x08
	SelFuseExt  = 0x08
	SelLock     = 0x00
)

// Response byte positions.
const (
	EchoIndex   = 2
	ResultIndex = 3
)

// CommandName returns a human-readable name for a frame's opcode pair.
func CommandName(op, sub byte) string {
	switch op {
	case 0xAC:
		switch sub {
		case SubProgramEnable:
			return "program enable"
		case SubChipErase:
			return "chip erase"
		case SubWriteLock:
			return "write lock"
		case SubWriteFuseLow:
			return "write fuse low"
		case SubWriteFuseHigh:
			return "write fuse high"
		case SubWriteFuseExt:
			return "write fuse ext"
		}
		return "unknown 0xAC"
	case CmdLoadFlashLow:
		return "load flash low"
	case CmdLoadFlashHigh:
		return "load flash high"
	case CmdWriteFlashPage:
		return "write flash page"
	case CmdReadFlashLow:
		return "read flash low"
	case CmdReadFlashHigh:
		return "read flash high"
	case CmdLoadEEPROM:
		return "load eeprom"
	case CmdWriteEEPROMPage:
		return "write eeprom page"
	case CmdReadEEPROM:
		return "read eeprom"
	case CmdWriteEEPROM:
		return "write eeprom"
	case 0x58:
		if sub == SelFuseHigh {
			return "read fuse high"
		}
		return "read lock"
	case 0x50:
		if sub == SelFuseExt {
			return "read fuse ext"
		}
		return "read fuse low"
	case CmdReadSignature:
		return "read signature"
	case CmdReadCalibration:
		return "read calibration"
	case CmdPollBusy:
		return "poll busy"
	default:
		return "unknown"
	}
}
