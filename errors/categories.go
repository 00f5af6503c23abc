package errors

// list of error numbers, grouped by the taxonomy in spec.md section 7.
const (
	// Configuration (fatal, pre-run)
	ConfigFileCannotOpen Errno = iota
	ConfigFileInvalid
	ConfigOverlappingRegions
	ConfigUnknownPeripheral
	ConfigUnknownDevice
	ConfigUnknownFramebuffer

	// Vendor description file
	SVDFileCannotOpen
	SVDFileInvalid
	SVDPeripheralNotFound

	// I/O (fatal, pre-run)
	ImageFileCannotOpen
	ImageTooLargeForRegion

	// CPU engine (fatal)
	EngineFault
	EngineUnimplementedInstruction
)
