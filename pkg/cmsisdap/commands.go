package cmsisdap

// Command IDs.
const (
	CmdInfo        = 0x00
	CmdHostStatus  = 0x01
	CmdConnect     = 0x02
	CmdDisconnect  = 0x03
	CmdDelay       = 0x09
	CmdResetTarget = 0x0A
	CmdSWJPins     = 0x10
	CmdSWJClock    = 0x11
	CmdInvalid     = 0xFF
)

// DAP_Info IDs.
const (
	InfoVendor       = 0x01
	InfoProduct      = 0x02
	InfoSerial       = 0x03
	InfoFirmware     = 0x04
	InfoTargetVendor = 0x05
	InfoTargetName   = 0x06
	InfoCapabilities = 0xF0
	InfoPacketCount  = 0xFE
	InfoPacketSize   = 0xFF
)

// Capability bits of DAP_Info.
const (
	CapSWD  = 0x01
	CapJTAG = 0x02
)

// Response status.
const (
	StatusOK    = 0x00
	StatusError = 0xFF
)

// DAP_Connect ports.
const (
	PortDefault = 0
	PortSWD     = 1
	PortJTAG    = 2
)

// DAP_HostStatus types.
const (
	HostConnected = 0
	HostRunning   = 1
)

// DAP_SWJ_Pins bit positions.
const (
	PinSWCLK  = 0
	PinSWDIO  = 1
	PinTDI    = 2
	PinTDO    = 3
	PinNTRST  = 5
	PinNRESET = 7
)
