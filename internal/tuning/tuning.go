package tuning

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	// ProximityRadius bounds who receives movement and local chat.
	ProximityRadius float64 `yaml:"proximity_radius"`
	// OutboundQueue is the per-session buffered message count before the session is dropped.
	OutboundQueue int `yaml:"outbound_queue"`

	StarterGold  int64    `yaml:"starter_gold"`
	StarterItems []string `yaml:"starter_items"`

	Movement    Movement    `yaml:"movement"`
	Party       Party       `yaml:"party"`
	Guild       Guild       `yaml:"guild"`
	Trade       Trade       `yaml:"trade"`
	Matchmaking Matchmaking `yaml:"matchmaking"`
	Chat        Chat        `yaml:"chat"`
	RateLimits  RateLimits  `yaml:"rate_limits"`
}

type Movement struct {
	// MaxStep is the largest distance accepted between two updates (0 = trust the client).
	MaxStep float64 `yaml:"max_step"`
	// WorldBound rejects |x| or |z| beyond it (0 = unbounded).
	WorldBound float64 `yaml:"world_bound"`
}

type Party struct {
	MaxSize int `yaml:"max_size"`
}

type Guild struct {
	// Ranks from highest to lowest. The first rank leads, the last is given to new members.
	Ranks      []string `yaml:"ranks"`
	MaxNameLen int      `yaml:"max_name_len"`
}

type Trade struct {
	// MaxDistance limits how far apart two players may open a trade (0 = anywhere).
	MaxDistance float64 `yaml:"max_distance"`
	MaxItems    int     `yaml:"max_items"`
}

type Matchmaking struct {
	IntervalMS int            `yaml:"interval_ms"`
	Queues     map[string]int `yaml:"queues"`
}

func (m Matchmaking) Interval() time.Duration {
	return time.Duration(m.IntervalMS) * time.Millisecond
}

type Chat struct {
	MaxLen int `yaml:"max_len"`
}

type RateLimits struct {
	ChatWindowMS    int `yaml:"chat_window_ms"`
	ChatMax         int `yaml:"chat_max"`
	GlobalWindowMS  int `yaml:"global_window_ms"`
	GlobalMax       int `yaml:"global_max"`
	WhisperWindowMS int `yaml:"whisper_window_ms"`
	WhisperMax      int `yaml:"whisper_max"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		ProximityRadius: 50,
		OutboundQueue:   256,
		StarterGold:     100,
		Movement:        Movement{MaxStep: 25, WorldBound: 10000},
		Party:           Party{MaxSize: 5},
		Guild:           Guild{Ranks: []string{"leader", "officer", "member"}, MaxNameLen: 40},
		Trade:           Trade{MaxDistance: 0, MaxItems: 32},
		Matchmaking: Matchmaking{
			IntervalMS: 1000,
			Queues: map[string]int{
				"1v1":        2,
				"3v3":        6,
				"5v5":        10,
				"tournament": 8,
			},
		},
		Chat: Chat{MaxLen: 500},
		RateLimits: RateLimits{
			ChatWindowMS:    10_000,
			ChatMax:         10,
			GlobalWindowMS:  30_000,
			GlobalMax:       3,
			WhisperWindowMS: 10_000,
			WhisperMax:      10,
		},
	}
}

// Load reads a tuning file on top of Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.ProximityRadius <= 0 {
		return fmt.Errorf("proximity_radius must be > 0")
	}
	if t.OutboundQueue <= 0 {
		return fmt.Errorf("outbound_queue must be > 0")
	}
	if t.Party.MaxSize < 2 {
		return fmt.Errorf("party.max_size must be >= 2")
	}
	if len(t.Guild.Ranks) < 2 {
		return fmt.Errorf("guild.ranks needs at least a leader and a member rank")
	}
	seen := map[string]bool{}
	for _, r := range t.Guild.Ranks {
		r = strings.TrimSpace(r)
		if r == "" {
			return fmt.Errorf("guild.ranks: empty rank")
		}
		if seen[r] {
			return fmt.Errorf("guild.ranks: duplicate rank %q", r)
		}
		seen[r] = true
	}
	if t.Matchmaking.IntervalMS <= 0 {
		return fmt.Errorf("matchmaking.interval_ms must be > 0")
	}
	if len(t.Matchmaking.Queues) == 0 {
		return fmt.Errorf("matchmaking.queues is empty")
	}
	for _, name := range t.QueueTypes() {
		if t.Matchmaking.Queues[name] < 2 {
			return fmt.Errorf("matchmaking.queues.%s must require at least 2 players", name)
		}
	}
	if t.Movement.MaxStep < 0 || t.Movement.WorldBound < 0 {
		return fmt.Errorf("movement bounds must be >= 0")
	}
	if t.StarterGold < 0 {
		return fmt.Errorf("starter_gold must be >= 0")
	}
	return nil
}

// QueueTypes lists configured queue names in a stable order.
func (t Tuning) QueueTypes() []string {
	out := make([]string, 0, len(t.Matchmaking.Queues))
	for k := range t.Matchmaking.Queues {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
