// Package catalog declares the music sequencer actions the reasoning engine
// may request. The orchestrator never executes these actions; a front-end
// sequencer does, and reports results back through the resume path.
package catalog

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/signalmusic/conductor/pkg/reasoning"
)

// Catalog holds the declared actions and the composition policy prompt.
// Every input schema is compiled at construction so a malformed declaration
// fails fast instead of at request time. Argument payloads are not checked
// here; they flow outbound to the sequencer, which reports errors back as
// action results.
type Catalog struct {
	actions []reasoning.ActionSchema
}

// New builds the music action catalog
func New() (*Catalog, error) {
	actions := []reasoning.ActionSchema{
		{
			Name:        "createTrack",
			Description: "Creates a new MIDI track with the specified instrument. Returns JSON with trackId, instrumentName, programNumber, channel, isDrums.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"instrumentName": map[string]interface{}{
						"type":        "string",
						"description": `The instrument to use. GM names like "Acoustic Grand Piano" or aliases like "piano", "guitar", "drums", "bass"`,
					},
					"trackName": map[string]interface{}{
						"type":        "string",
						"description": "Optional custom name for the track. Defaults to the instrument name.",
					},
				},
				"required": []string{"instrumentName"},
			},
		},
		{
			Name:        "addNotes",
			Description: "Adds notes to an existing track. Returns JSON with trackId and noteCount.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"trackId": map[string]interface{}{
						"type":        "integer",
						"description": "The track ID returned from createTrack",
					},
					"notes": map[string]interface{}{
						"type":        "array",
						"description": "Array of notes, each with: pitch (0-127, middle C=60), start (ticks, 480=quarter), duration (ticks), velocity (1-127, optional, default 100)",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"pitch":    map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 127},
								"start":    map[string]interface{}{"type": "integer", "minimum": 0},
								"duration": map[string]interface{}{"type": "integer", "minimum": 1},
								"velocity": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 127},
							},
							"required": []string{"pitch", "start", "duration"},
						},
					},
				},
				"required": []string{"trackId", "notes"},
			},
		},
		{
			Name:        "setTempo",
			Description: "Sets the tempo (BPM) at a specific position in the song. Returns JSON with bpm and tick.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"bpm": map[string]interface{}{
						"type":        "integer",
						"description": "Beats per minute (20-300). Common: Andante 76-108, Moderato 108-120, Allegro 120-168",
						"minimum":     20,
						"maximum":     300,
					},
					"tick": map[string]interface{}{
						"type":        "integer",
						"description": "Position in ticks where tempo takes effect. Default: 0 (start)",
						"minimum":     0,
					},
				},
				"required": []string{"bpm"},
			},
		},
		{
			Name:        "setTimeSignature",
			Description: "Sets the time signature at a specific position. Returns JSON with numerator, denominator, and tick.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"numerator": map[string]interface{}{
						"type":        "integer",
						"description": "Beats per measure (1-16). Common: 4 for 4/4, 3 for 3/4",
						"minimum":     1,
						"maximum":     16,
					},
					"denominator": map[string]interface{}{
						"type":        "integer",
						"description": "Beat unit: 2=half, 4=quarter, 8=eighth, 16=sixteenth",
						"enum":        []interface{}{2, 4, 8, 16},
					},
					"tick": map[string]interface{}{
						"type":        "integer",
						"description": "Position in ticks where time signature takes effect. Default: 0",
						"minimum":     0,
					},
				},
				"required": []string{"numerator", "denominator"},
			},
		},
		{
			Name:        "addEffects",
			Description: "Adds effects to an existing track (volume, pan, program_change, expression, pitch_bend, sustain). Returns JSON with trackId and effectsAdded count.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"trackId": map[string]interface{}{
						"type":        "integer",
						"description": "The track ID returned from createTrack",
					},
					"effects": map[string]interface{}{
						"type":        "array",
						"description": "Array of effect objects. Value ranges: volume/pan/program_change/expression/sustain 0-127, pitch_bend 0-16384 (8192 = center).",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"effect_type": map[string]interface{}{
									"type": "string",
									"enum": []interface{}{"volume", "pan", "program_change", "expression", "pitch_bend", "sustain"},
								},
								"value": map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 16384},
								"tick":  map[string]interface{}{"type": "integer", "minimum": 0},
							},
							"required": []string{"effect_type", "value"},
						},
					},
				},
				"required": []string{"trackId", "effects"},
			},
		},
	}

	for _, action := range actions {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(action.InputSchema)); err != nil {
			return nil, fmt.Errorf("invalid schema for action %s: %w", action.Name, err)
		}
	}

	return &Catalog{actions: actions}, nil
}

// Actions returns the declared action schemas in a stable order
func (c *Catalog) Actions() []reasoning.ActionSchema {
	return c.actions
}

// Policy returns the composition policy prompt
func (c *Catalog) Policy() string {
	return composerPolicy
}
