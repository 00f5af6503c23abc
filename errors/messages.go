package errors

var messages = map[Errno]string{
	// Configuration
	ConfigFileCannotOpen:    "cannot open configuration file (%s)",
	ConfigFileInvalid:       "failed to parse configuration file (%s): %v",
	ConfigOverlappingRegions: "memory regions %s and %s overlap",
	ConfigUnknownPeripheral:  "unknown peripheral type for %s",
	ConfigUnknownDevice:      "unknown device type (%s)",
	ConfigUnknownFramebuffer: "no framebuffer named %s",

	// Vendor description file
	SVDFileCannotOpen:     "cannot open SVD file (%s)",
	SVDFileInvalid:        "failed to parse SVD file (%s): %v",
	SVDPeripheralNotFound: "cannot find peripheral %s (derivedFrom)",

	// I/O
	ImageFileCannotOpen:    "cannot open image file (%s): %v",
	ImageTooLargeForRegion: "image %s (%d bytes) does not fit in region %s (%d bytes)",

	// CPU engine
	EngineFault:                    "CPU engine fault at pc=0x%08x: %v",
	EngineUnimplementedInstruction: "unimplemented instruction at pc=0x%08x",
}
