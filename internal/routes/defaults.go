package routes

// Truck payload per destination, in tons per cycle.
var defaultPayloads = map[string]float64{
	"Planta":    224.0,
	"Acopio_1":  224.0,
	"Acopio_M2": 224.0,
	"BOSE":      200.0,
	"BONE":      200.0,
	"DR":        200.0,
}

var defaultDefinitions = []Definition{
	{Solid: "Acopios_Mineral_2", Destination: "Planta", CycleMinutes: 11.7, Budget: 6000},
	{Solid: "F1_1015_0", Destination: "Planta", CycleMinutes: 18.0, Budget: 58000},
	{Solid: "F3_1177_5", Destination: "Planta", CycleMinutes: 13.5, Budget: 202000},
	{Solid: "F3_1190_0", Destination: "Planta", CycleMinutes: 12.9, Budget: 190000},
	{Solid: "F1_1015_0", Destination: "BOSE", CycleMinutes: 30.1, Budget: 80543},
	{Solid: "F1_1015_0", Destination: "Acopio_1", CycleMinutes: 20.6, Budget: 114462},
	{Solid: "F1_1015_0", Destination: "Acopio_M2", CycleMinutes: 22.3, Budget: 21395},
	{Solid: "F2_1177_5", Destination: "BOSE", CycleMinutes: 27.4, Budget: 179881},
	{Solid: "F2_1177_5", Destination: "Acopio_1", CycleMinutes: 16.6, Budget: 50355},
	{Solid: "F2_1177_5", Destination: "Acopio_M2", CycleMinutes: 17.9, Budget: 96926},
	{Solid: "F2_1165_0", Destination: "BOSE", CycleMinutes: 23.2, Budget: 502663},
	{Solid: "F3_1190_0", Destination: "BONE", CycleMinutes: 18.4, Budget: 420289},
	{Solid: "F3_1190_0", Destination: "Acopio_1", CycleMinutes: 18.4, Budget: 49006},
	{Solid: "F3_1190_0", Destination: "Acopio_M2", CycleMinutes: 11.8, Budget: 43413},
	{Solid: "F3_1177_5", Destination: "BOSE", CycleMinutes: 25.6, Budget: 32983},
	{Solid: "F3_1177_5", Destination: "Acopio_1", CycleMinutes: 16.4, Budget: 129680},
	{Solid: "F3_1177_5", Destination: "Acopio_M2", CycleMinutes: 17.7, Budget: 51128},
	{Solid: "Adicional_Patio_Tolva", Destination: "DR", CycleMinutes: 29.2, Budget: 60000},
}

var defaultCatalog = MustNewCatalog(defaultDefinitions, defaultPayloads)

// Default returns the shared Copiapó pit catalog.
func Default() *Catalog {
	return defaultCatalog
}

// DefaultDefinitions returns a copy of the compiled-in route definitions.
func DefaultDefinitions() []Definition {
	out := make([]Definition, len(defaultDefinitions))
	copy(out, defaultDefinitions)
	return out
}

// DefaultPayloads returns a copy of the compiled-in destination payloads.
func DefaultPayloads() map[string]float64 {
	out := make(map[string]float64, len(defaultPayloads))
	for k, v := range defaultPayloads {
		out[k] = v
	}
	return out
}
