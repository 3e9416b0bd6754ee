package router

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalogue holds canonical example phrases per action.
type Catalogue map[ActionKind][]string

// DefaultCatalogue returns the built-in example phrases.
func DefaultCatalogue() Catalogue {
	return Catalogue{
		ActionList: {
			"what meetings do I have today",
			"show my calendar for tomorrow",
			"what's on my schedule this week",
			"what's next on my agenda",
			"list my events for friday",
			"am I busy this afternoon",
		},
		ActionCreate: {
			"schedule a meeting with the team tomorrow at 10am",
			"book a call with John on friday",
			"add lunch with Sarah to my calendar",
			"create an event for the product launch",
			"set up a 1:1 next week",
			"put a dentist appointment on thursday",
		},
		ActionUpdate: {
			"change the title of my 3pm meeting",
			"add Priya to the design review",
			"update the location of tomorrow's standup",
			"rename the planning session",
			"set the meeting room for the interview",
		},
		ActionDelete: {
			"cancel my meeting with John",
			"delete the standup on friday",
			"remove the dentist appointment",
			"clear my afternoon meetings",
		},
		ActionSearch: {
			"find my meeting about the budget",
			"when is my next dentist appointment",
			"search for events with Priya",
			"look up the offsite",
		},
		ActionCount: {
			"how many meetings do I have this week",
			"count my calls tomorrow",
			"number of events next month",
		},
		ActionAnalyzeConflicts: {
			"do I have any conflicts tomorrow",
			"check for overlapping meetings this week",
			"am I double booked on friday",
			"which events clash on monday",
		},
		ActionMove: {
			"move my standup to the afternoon",
			"reschedule the review to friday",
			"push the 1:1 back an hour",
			"postpone lunch to next week",
		},
		ActionFindFreeTime: {
			"when am I free tomorrow",
			"find a free slot for a 30 minute call",
			"what time is available on friday",
			"find time for a one hour meeting this week",
		},
	}
}

// LoadCatalogueFile reads a catalogue from YAML: a mapping of action label to phrases.
func LoadCatalogueFile(path string) (Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue: %w", err)
	}
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse catalogue %s: %w", path, err)
	}
	cat := make(Catalogue, len(raw))
	for label, phrases := range raw {
		action, ok := ParseActionKind(label)
		if !ok {
			return nil, fmt.Errorf("catalogue %s: unknown action %q", path, label)
		}
		cat[action] = append(cat[action], phrases...)
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("catalogue %s: %w", path, err)
	}
	return cat, nil
}

// Validate checks the catalogue has at least one non-empty phrase.
func (c Catalogue) Validate() error {
	for _, phrases := range c {
		for _, p := range phrases {
			if p != "" {
				return nil
			}
		}
	}
	return fmt.Errorf("catalogue has no phrases")
}

// entries flattens the catalogue in AllActionKinds order.
func (c Catalogue) entries() ([]ActionKind, []string) {
	var actions []ActionKind
	var phrases []string
	for _, a := range allActions {
		for _, p := range c[a] {
			if p == "" {
				continue
			}
			actions = append(actions, a)
			phrases = append(phrases, p)
		}
	}
	return actions, phrases
}
