package session

import (
	"errors"
	"fmt"

	"github.com/CZERTAINLY/Sortie/internal/screen"
)

// Profile is the template table of one battle mode. Two profiles differ only
// in data, the state machine driving them is shared.
type Profile struct {
	Name       string
	Home       string
	Back       string
	Navigate   []string
	Engage     string
	Start      string
	BattleOver string
	Return     string
	// Refresh is optional. When empty or missing from the catalog, the
	// escalation ladder falls back to drag gestures.
	Refresh   string
	BattleCap int
}

const DefaultBattleCap = 10

func Arena() Profile {
	return Profile{
		Name:       "arena",
		Home:       "homescreenCheck.png",
		Back:       "BackButton.png",
		Navigate:   []string{"BattleButton.png", "ArenaButton.png", "classicArenaButton.png"},
		Engage:     "ArenaBattleButton.png",
		Start:      "arenastartbutton.png",
		BattleOver: "Arenabattleoverbutton.png",
		Return:     "ArenaReturnButton.png",
		Refresh:    "RefreshButton.png",
		BattleCap:  DefaultBattleCap,
	}
}

func TagArena() Profile {
	return Profile{
		Name:       "tag_arena",
		Home:       "homescreenCheck.png",
		Back:       "BackButton.png",
		Navigate:   []string{"BattleButton.png", "ArenaButton.png", "TagTeamArena.png"},
		Engage:     "TagBattleButton.png",
		Start:      "TagStartButton.png",
		BattleOver: "Tagbattleoverbutton.png",
		Return:     "TagReturnButton.png",
		Refresh:    "RefreshButton.png",
		BattleCap:  DefaultBattleCap,
	}
}

// Profiles lists the built-in profiles by name.
func Profiles() map[string]Profile {
	return map[string]Profile{
		"arena":     Arena(),
		"tag_arena": TagArena(),
	}
}

// Templates is a Profile with every name resolved to a handle.
type Templates struct {
	Home       screen.Template
	Back       screen.Template
	Navigate   []screen.Template
	Engage     screen.Template
	Start      screen.Template
	BattleOver screen.Template
	Return     screen.Template
	Refresh    *screen.Template
}

// Resolve looks every template of the profile up in the catalog. All
// missing required templates are reported at once.
func (p Profile) Resolve(catalog screen.Catalog) (Templates, error) {
	var errs []error
	get := func(name string) screen.Template {
		tpl, err := catalog.Resolve(name)
		if err != nil {
			errs = append(errs, err)
		}
		return tpl
	}

	t := Templates{
		Home:       get(p.Home),
		Back:       get(p.Back),
		Engage:     get(p.Engage),
		Start:      get(p.Start),
		BattleOver: get(p.BattleOver),
		Return:     get(p.Return),
	}
	for _, name := range p.Navigate {
		t.Navigate = append(t.Navigate, get(name))
	}
	if p.Refresh != "" {
		if tpl, err := catalog.Resolve(p.Refresh); err == nil {
			t.Refresh = &tpl
		}
	}
	if len(errs) > 0 {
		return Templates{}, fmt.Errorf("profile %s: %w", p.Name, errors.Join(errs...))
	}
	return t, nil
}
