// Package session handles presence: creating a match, joining, leaving,
// host settings and staleness. Per-round rules live in internal/game.
package session

import (
	"strings"
	"time"

	"tablegames/internal/domain"
	"tablegames/internal/game"
)

const MaxNameLen = 32

// reservedNames cannot be taken by players; "tie" marks a drawn rps round.
var reservedNames = []string{"tie"}

var (
	ErrInvalidName    = game.Reject("player name must be 1-32 characters without / . # $ [ ]")
	ErrNameTaken      = game.Reject("player name already taken")
	ErrReservedName   = game.Reject("player name is reserved")
	ErrMatchFull      = game.Reject("match is full")
	ErrMatchClosed    = game.Reject("match already finished")
	ErrAlreadyStarted = game.Reject("match already started")
	ErrNotHost        = game.Reject("only the host can change settings")
	ErrSettingsLocked = game.Reject("settings are fixed once the match starts")
	ErrBadSettings    = game.Reject("invalid settings")
	ErrUnknownPlayer  = game.Reject("player is not in this match")
	ErrSeatReplaced   = game.Reject("this seat was given up and taken by someone else")
)

// ValidName trims and checks a display name. Names are document keys, so '/' is banned.
func ValidName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || len(name) > MaxNameLen || strings.ContainsAny(name, "/.#$[]") {
		return "", ErrInvalidName
	}
	for _, r := range reservedNames {
		if strings.EqualFold(name, r) {
			return "", ErrReservedName
		}
	}
	return name, nil
}

// NewMatch builds the initial document with host as its sole player.
// Unknown game types are rejected here, before anything is written.
func NewMatch(id string, gameType domain.GameType, host string, override *domain.SettingsPatch, now time.Time) (*domain.Match, error) {
	if _, ok := domain.LookupGame(gameType); !ok {
		return nil, domain.ErrUnknownGameType
	}
	name, err := ValidName(host)
	if err != nil {
		return nil, err
	}
	s := domain.DefaultSettings(gameType)
	if override != nil {
		s = s.Merge(*override)
	}
	if err := ValidateSettings(gameType, s); err != nil {
		return nil, err
	}

	ms := now.UnixMilli()
	m := &domain.Match{
		ID:          id,
		GameType:    gameType,
		Status:      domain.StatusWaiting,
		Players:     map[string]*domain.Player{},
		Settings:    s,
		CreatedAt:   ms,
		LastUpdated: ms,
	}
	p := newPlayer(m, name, now)
	p.IsHost = true
	m.Players[name] = p
	return m, nil
}

func newPlayer(m *domain.Match, name string, now time.Time) *domain.Player {
	return &domain.Player{
		Name:     name,
		Seat:     m.NextSeat(),
		IsActive: true,
		Score:    m.Settings.StartingScore,
		Money:    m.Settings.StartingMoney,
		JoinedAt: now.UnixMilli(),
	}
}

// ValidateSettings checks ranges for the given game type.
func ValidateSettings(gameType domain.GameType, s domain.Settings) error {
	info, ok := domain.LookupGame(gameType)
	if !ok {
		return domain.ErrUnknownGameType
	}
	switch {
	case s.MaxPlayers < info.MinPlayers || s.MaxPlayers > info.MaxPlayers:
	case s.RoundTimeout < 1 || s.RoundTimeout > 300:
	case s.BetFee < 0 || s.BetFee > 100:
	case s.Rounds < 1 || s.Rounds > 100:
	case s.StartingMoney < 1 || s.StartingScore < 1:
	case s.StartingMoney > domain.MaxBalance || s.StartingScore > domain.MaxBalance:
	case s.RevealWindow < 1 || s.RevealWindow > 60:
	case s.Digits1 < 1 || s.Digits1 > game.MaxDigits || s.Digits2 < 1 || s.Digits2 > game.MaxDigits:
	case s.ProblemCount < 1 || s.ProblemCount > game.MaxProblems:
	default:
		return nil
	}
	return ErrBadSettings
}

// Join seats name in m. Only coinflip accepts players after the start.
func Join(m *domain.Match, raw string, now time.Time) (game.Patch, *domain.Player, error) {
	name, err := ValidName(raw)
	if err != nil {
		return nil, nil, err
	}
	switch m.Status {
	case domain.StatusCompleted:
		return nil, nil, ErrMatchClosed
	case domain.StatusActive:
		if m.GameType != domain.GameTypeCoinflip {
			return nil, nil, ErrAlreadyStarted
		}
	}
	if m.Player(name) != nil {
		return nil, nil, ErrNameTaken
	}
	if len(m.Players) >= m.Settings.MaxPlayers {
		return nil, nil, ErrMatchFull
	}
	p := newPlayer(m, name, now)
	// a rejoin under the same name must get a fresh seating stamp
	p.JoinedAt = max(p.JoinedAt, m.LastUpdated+1)
	return game.Patch{"players/" + name: p}, p, nil
}

// CheckSeat verifies that name still holds the seating taken at joinedAt.
// A zero joinedAt checks only that name is seated.
func CheckSeat(m *domain.Match, name string, joinedAt int64) error {
	if m.Player(name) == nil {
		return ErrUnknownPlayer
	}
	if !m.Seated(name, joinedAt) {
		return ErrSeatReplaced
	}
	return nil
}

// Leave takes name out of a lobby or a finished match. A waiting non-host
// gives up the seat entirely. Leaving during play goes through the engine.
func Leave(m *domain.Match, name string) (game.Patch, error) {
	p := m.Player(name)
	if p == nil {
		return nil, ErrUnknownPlayer
	}
	if m.Status == domain.StatusWaiting && !p.IsHost {
		return game.Patch{"players/" + name: nil}, nil
	}
	return game.Patch{"players/" + name + "/isActive": false}, nil
}

// UpdateSettings lets the host change settings while the lobby is open.
func UpdateSettings(m *domain.Match, actor string, s domain.SettingsPatch) (game.Patch, error) {
	p := m.Player(actor)
	if p == nil || !p.IsHost {
		return nil, ErrNotHost
	}
	if m.Status != domain.StatusWaiting {
		return nil, ErrSettingsLocked
	}
	merged := m.Settings.Merge(s)
	if err := ValidateSettings(m.GameType, merged); err != nil {
		return nil, err
	}
	if merged.MaxPlayers < len(m.Players) {
		return nil, ErrMatchFull
	}
	patch := game.Patch{"settings": merged}
	// lobby balances follow the new starting values
	for name := range m.Players {
		patch.Player(name, "score", merged.StartingScore)
		patch.Player(name, "money", merged.StartingMoney)
	}
	return patch, nil
}

// IsStale reports whether m has been idle longer than ttl.
func IsStale(m *domain.Match, now time.Time, ttl time.Duration) bool {
	return now.Sub(time.UnixMilli(m.LastUpdated)) > ttl
}

// IsExpired reports whether a completed match is past its grace period.
func IsExpired(m *domain.Match, now time.Time, grace time.Duration) bool {
	return m.Status == domain.StatusCompleted && IsStale(m, now, grace)
}
