package catalog

// Default returns the built-in ~100-entry descriptor pool. rotationd and
// voted always use it: config has no fixed option list, and no binary
// reads Catalog.Path or calls LoadFile.
func Default() *Catalog {
	c, err := New(defaultDescriptors)
	if err != nil {
		// defaultDescriptors is a compile-time constant list with no
		// duplicate keys; this can only fail if that invariant regresses.
		panic(err)
	}
	return c
}

var defaultDescriptors = []Descriptor{
	{Key: "dreamy", Label: "Dreamy"},
	{Key: "driving", Label: "Driving"},
	{Key: "nocturnal", Label: "Nocturnal"},
	{Key: "glitchy", Label: "Glitchy"},
	{Key: "sunlit", Label: "Sunlit"},
	{Key: "melancholic", Label: "Melancholic"},
	{Key: "euphoric", Label: "Euphoric"},
	{Key: "hypnotic", Label: "Hypnotic"},
	{Key: "gritty", Label: "Gritty"},
	{Key: "airy", Label: "Airy"},
	{Key: "warped", Label: "Warped"},
	{Key: "lush", Label: "Lush"},
	{Key: "minimal", Label: "Minimal"},
	{Key: "maximal", Label: "Maximal"},
	{Key: "smoky", Label: "Smoky"},
	{Key: "crystalline", Label: "Crystalline"},
	{Key: "brooding", Label: "Brooding"},
	{Key: "playful", Label: "Playful"},
	{Key: "cinematic", Label: "Cinematic"},
	{Key: "industrial", Label: "Industrial"},
	{Key: "tropical", Label: "Tropical"},
	{Key: "arctic", Label: "Arctic"},
	{Key: "vintage", Label: "Vintage"},
	{Key: "futuristic", Label: "Futuristic"},
	{Key: "acoustic", Label: "Acoustic"},
	{Key: "distorted", Label: "Distorted"},
	{Key: "weightless", Label: "Weightless"},
	{Key: "groovy", Label: "Groovy"},
	{Key: "jagged", Label: "Jagged"},
	{Key: "velvet", Label: "Velvet"},
	{Key: "frantic", Label: "Frantic"},
	{Key: "sparse", Label: "Sparse"},
	{Key: "dense", Label: "Dense"},
	{Key: "wistful", Label: "Wistful"},
	{Key: "triumphant", Label: "Triumphant"},
	{Key: "eerie", Label: "Eerie"},
	{Key: "sultry", Label: "Sultry"},
	{Key: "rowdy", Label: "Rowdy"},
	{Key: "serene", Label: "Serene"},
	{Key: "feral", Label: "Feral"},
	{Key: "polished", Label: "Polished"},
	{Key: "rough", Label: "Rough"},
	{Key: "ambient", Label: "Ambient"},
	{Key: "percussive", Label: "Percussive"},
	{Key: "melodic", Label: "Melodic"},
	{Key: "atonal", Label: "Atonal"},
	{Key: "swung", Label: "Swung"},
	{Key: "quantized", Label: "Quantized"},
	{Key: "analog", Label: "Analog"},
	{Key: "digital", Label: "Digital"},
	{Key: "submerged", Label: "Submerged"},
	{Key: "soaring", Label: "Soaring"},
	{Key: "muted", Label: "Muted"},
	{Key: "blown-out", Label: "Blown-out"},
	{Key: "lo-fi", Label: "Lo-fi"},
	{Key: "hi-fi", Label: "Hi-fi"},
	{Key: "campfire", Label: "Campfire"},
	{Key: "neon", Label: "Neon"},
	{Key: "concrete", Label: "Concrete"},
	{Key: "feathered", Label: "Feathered"},
	{Key: "coiled", Label: "Coiled"},
	{Key: "unraveling", Label: "Unraveling"},
	{Key: "sun-bleached", Label: "Sun-bleached"},
	{Key: "rain-soaked", Label: "Rain-soaked"},
	{Key: "slow-burn", Label: "Slow-burn"},
	{Key: "fast-burn", Label: "Fast-burn"},
	{Key: "meditative", Label: "Meditative"},
	{Key: "urgent", Label: "Urgent"},
	{Key: "ornate", Label: "Ornate"},
	{Key: "austere", Label: "Austere"},
	{Key: "gilded", Label: "Gilded"},
	{Key: "rusted", Label: "Rusted"},
	{Key: "buoyant", Label: "Buoyant"},
	{Key: "leaden", Label: "Leaden"},
	{Key: "threadbare", Label: "Threadbare"},
	{Key: "overgrown", Label: "Overgrown"},
	{Key: "swarming", Label: "Swarming"},
	{Key: "hollow", Label: "Hollow"},
	{Key: "saturated", Label: "Saturated"},
	{Key: "washed-out", Label: "Washed-out"},
	{Key: "kinetic", Label: "Kinetic"},
	{Key: "static", Label: "Static"},
	{Key: "elastic", Label: "Elastic"},
	{Key: "brittle", Label: "Brittle"},
	{Key: "syrupy", Label: "Syrupy"},
	{Key: "sparkling", Label: "Sparkling"},
	{Key: "murky", Label: "Murky"},
	{Key: "translucent", Label: "Translucent"},
	{Key: "blunt", Label: "Blunt"},
	{Key: "precise", Label: "Precise"},
	{Key: "wandering", Label: "Wandering"},
	{Key: "rooted", Label: "Rooted"},
	{Key: "feverish", Label: "Feverish"},
	{Key: "glacial", Label: "Glacial"},
	{Key: "humid", Label: "Humid"},
	{Key: "dusty", Label: "Dusty"},
	{Key: "chrome", Label: "Chrome"},
	{Key: "wooden", Label: "Wooden"},
	{Key: "submerged-bass", Label: "Submerged bass"},
	{Key: "skybound", Label: "Skybound"},
	{Key: "subterranean", Label: "Subterranean"},
	{Key: "nostalgic", Label: "Nostalgic"},
	{Key: "unmoored", Label: "Unmoored"},
}
