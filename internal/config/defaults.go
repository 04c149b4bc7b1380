package config

// defaultDocument returns the built-in show configuration used when no config
// file exists yet, or after a reset.
func defaultDocument() Document {
	return Document{
		FixtureProfiles: []FixtureProfile{
			{
				ID:   "rgb-3ch",
				Name: "LED Par (3ch RGB)",
				Channels: []Channel{
					{Name: "red", Offset: 0, Group: "color"},
					{Name: "green", Offset: 1, Group: "color"},
					{Name: "blue", Offset: 2, Group: "color"},
				},
			},
			{
				ID:   "intensity-1ch",
				Name: "Dimmer (1ch)",
				Channels: []Channel{
					{Name: "intensity", Offset: 0},
				},
			},
			{
				ID:   "rgbw-4ch",
				Name: "LED Par (4ch RGBW)",
				Channels: []Channel{
					{Name: "red", Offset: 0, Group: "color"},
					{Name: "green", Offset: 1, Group: "color"},
					{Name: "blue", Offset: 2, Group: "color"},
					{Name: "white", Offset: 3, Group: "color"},
				},
			},
		},
		Fixtures: []Fixture{
			{ID: "panel1", Name: "RGB Panel 1", ProfileID: "rgb-3ch", Universe: 1, StartAddress: 1, ShowOnMain: true},
			{ID: "panel2", Name: "RGB Panel 2", ProfileID: "rgb-3ch", Universe: 1, StartAddress: 4, ShowOnMain: true},
			{ID: "par1", Name: "Backlight PAR 1", ProfileID: "intensity-1ch", Universe: 1, StartAddress: 7, ShowOnMain: true},
			{ID: "par2", Name: "Backlight PAR 2", ProfileID: "intensity-1ch", Universe: 1, StartAddress: 8, ShowOnMain: true},
		},
		Looks: []Look{
			{
				ID:    "look1",
				Name:  "Warm Dramatic",
				Color: "#e8a33d",
				Targets: map[string]map[string]float64{
					"panel1": {"red": 75, "green": 40, "blue": 10},
					"panel2": {"red": 75, "green": 40, "blue": 10},
					"par1":   {"intensity": 60},
					"par2":   {"intensity": 60},
				},
			},
			{
				ID:    "look2",
				Name:  "Cool Dramatic",
				Color: "#3d7fe8",
				Targets: map[string]map[string]float64{
					"panel1": {"red": 10, "green": 45, "blue": 70},
					"panel2": {"red": 10, "green": 45, "blue": 70},
					"par1":   {"intensity": 50},
					"par2":   {"intensity": 50},
				},
			},
			{
				ID:    "look3",
				Name:  "Vibrant",
				Color: "#b03de8",
				Targets: map[string]map[string]float64{
					"panel1": {"red": 70, "green": 10, "blue": 85},
					"panel2": {"red": 15, "green": 85, "blue": 20},
					"par1":   {"intensity": 70},
					"par2":   {"intensity": 70},
				},
			},
		},
		Clients: []Client{},
		Network: NetworkConfig{
			Protocol: ProtocolSACN,
			SACN: SACNConfig{
				Priority:            100,
				Multicast:           true,
				UnicastDestinations: []string{},
			},
			ArtNet: ArtNetConfig{
				Destination: "255.255.255.255",
				Port:        6454,
			},
			OutputFPS: 30,
		},
		Server: ServerConfig{
			Port:        3000,
			BindAddress: "0.0.0.0",
		},
		WebServer: WebServerConfig{
			DefaultClientRole:  "viewer",
			ShowConnectedUsers: true,
		},
		ShowLayouts: []Layout{},
	}
}
