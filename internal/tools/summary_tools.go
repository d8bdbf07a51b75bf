package tools

import (
	"context"
	"fmt"
	"strings"

	"amble/internal/models"
	"amble/internal/session"
	"amble/internal/store"
)

func (d *domainTools) dailySummaryTool() *Tool {
	return &Tool{
		Name:        "get_daily_summary",
		Description: "Summarises the user's day so far: activities, active minutes, moods and spending.",
		Parameters:  object(map[string]interface{}{}),
		Domain:      DomainSummary,
		Handler:     Typed(d.dailySummary),
	}
}

func (d *domainTools) dailySummary(ctx context.Context, inv Invocation, _ struct{}) Result {
	now := inv.Now.In(d.location(ctx, inv))
	today := store.Range{Since: startOfDay(now), Until: inv.Now}

	acts, err := d.Store.ListActivities(ctx, inv.UserKey, today)
	if err != nil {
		return Errorf("could not load activities: %v", err)
	}
	moods, err := d.Store.ListMoods(ctx, inv.UserKey, today)
	if err != nil {
		return Errorf("could not load moods: %v", err)
	}
	expenses, err := d.Store.ListExpenses(ctx, inv.UserKey, today)
	if err != nil {
		return Errorf("could not load expenses: %v", err)
	}

	minutes := 0
	for _, a := range acts {
		minutes += a.DurationMinutes
	}
	var spent float64
	for _, e := range expenses {
		spent += e.Amount
	}
	trend := "not tracked"
	if len(moods) > 0 {
		trend = moodTrend(moods, "positive", "mixed")
	}

	return Success(
		fmt.Sprintf("Today you've been active for %d minutes across %d activities. Your mood has been %s.", minutes, len(acts), trend),
		map[string]interface{}{
			"date":                 now.Format("2006-01-02"),
			"mood_trend":           trend,
			"moods_logged":         len(moods),
			"activities_count":     len(acts),
			"total_active_minutes": minutes,
			"expenses_total":       round2(spent),
			"expenses_count":       len(expenses),
		},
	)
}

type suggestion struct {
	Title    string
	Type     models.ActivityType
	Minutes  int
	Keywords []string
	Energy   int // 0 calm, 1 moderate, 2 active
	Slots    []string
}

var suggestionCatalog = []suggestion{
	{"A gentle walk in the fresh air", models.ActivityWalking, 20, []string{"walk", "nature", "park"}, 1, []string{"morning", "evening"}},
	{"Light stretching or chair yoga", models.ActivityExercise, 15, []string{"yoga", "exercise", "fitness"}, 1, []string{"morning", "afternoon"}},
	{"Morning prayer or a few minutes of quiet reflection", models.ActivityReligious, 15, []string{"prayer", "temple", "spiritual", "bhajan"}, 0, []string{"morning"}},
	{"Tending to the plants", models.ActivityGardening, 30, []string{"garden", "plants", "flowers"}, 1, []string{"morning", "evening"}},
	{"Reading a few chapters of a favourite book", models.ActivityReading, 30, []string{"reading", "books", "newspaper"}, 0, []string{"afternoon", "evening"}},
	{"Calling a friend or family member for a chat", models.ActivityPhoneCall, 20, []string{"family", "friends", "grandchildren"}, 0, []string{"morning", "afternoon", "evening"}},
	{"Cooking a favourite simple recipe", models.ActivityCooking, 45, []string{"cooking", "recipes", "food"}, 1, []string{"morning", "afternoon"}},
	{"Listening to old songs or music", models.ActivityHobby, 30, []string{"music", "songs", "singing", "bhajan"}, 0, []string{"afternoon", "evening"}},
	{"A short breathing meditation", models.ActivityMeditation, 10, []string{"meditation", "breathing", "calm"}, 0, []string{"morning", "afternoon", "evening"}},
	{"Visiting a neighbour or the community centre", models.ActivitySocial, 60, []string{"community", "friends", "neighbours"}, 2, []string{"morning", "afternoon"}},
	{"A brisk walk to the local market", models.ActivityShopping, 40, []string{"market", "shopping", "walk"}, 2, []string{"morning", "evening"}},
	{"Working on a puzzle or crossword", models.ActivityHobby, 20, []string{"puzzles", "crossword", "games"}, 0, []string{"afternoon", "evening"}},
}

func (d *domainTools) activitySuggestionsTool() *Tool {
	return &Tool{
		Name:        "get_activity_suggestions",
		Description: "Suggests a few activities that fit the time of day, the user's latest mood and energy and their interests.",
		Parameters:  object(map[string]interface{}{}),
		Domain:      DomainSummary,
		Handler:     Typed(d.activitySuggestions),
	}
}

func (d *domainTools) activitySuggestions(ctx context.Context, inv Invocation, _ struct{}) Result {
	now := inv.Now.In(d.location(ctx, inv))
	slot := timeOfDay(now.Hour())

	lastMood := "unknown"
	energy := 5
	moods, err := d.Store.ListMoods(ctx, inv.UserKey, store.Latest(1))
	if err != nil {
		return Errorf("could not load moods: %v", err)
	}
	if len(moods) > 0 {
		lastMood = string(moods[0].Mood)
		energy = moods[0].EnergyLevel
	}

	var interests []string
	if inv.State != nil {
		if v, ok := inv.State.Get(session.KeyUserInterests); ok {
			interests = toStrings(v)
		}
	}
	if len(interests) == 0 {
		if p, err := d.Store.GetProfile(ctx, inv.UserKey); err == nil {
			interests = p.StringList(models.PrefInterests)
		}
	}

	picks := pickSuggestions(slot, energy, lastMood, interests, 3)
	list := make([]map[string]interface{}, len(picks))
	for i, s := range picks {
		list[i] = map[string]interface{}{
			"title":            s.Title,
			"activity_type":    string(s.Type),
			"duration_minutes": s.Minutes,
		}
	}
	return Success(
		fmt.Sprintf("Here are %d ideas for this %s.", len(picks), slot),
		map[string]interface{}{
			"time_of_day":     slot,
			"last_known_mood": lastMood,
			"energy_level":    energy,
			"interests":       interests,
			"suggestions":     list,
		},
	)
}

func timeOfDay(hour int) string {
	switch {
	case hour < 12:
		return "morning"
	case hour < 17:
		return "afternoon"
	}
	return "evening"
}

// pickSuggestions scores the catalog and returns the best n. Ties keep catalog order.
func pickSuggestions(slot string, energy int, mood string, interests []string, n int) []suggestion {
	maxEnergy := 2
	switch {
	case energy <= 3:
		maxEnergy = 0
	case energy <= 6:
		maxEnergy = 1
	}
	lonely := mood == string(models.MoodLonely) || mood == string(models.MoodSad)

	type scored struct {
		s     suggestion
		score int
	}
	var ranked []scored
	for _, s := range suggestionCatalog {
		if s.Energy > maxEnergy || !contains(s.Slots, slot) {
			continue
		}
		score := 0
		for _, in := range interests {
			in = strings.ToLower(in)
			for _, k := range s.Keywords {
				if strings.Contains(in, k) || strings.Contains(k, in) {
					score += 2
				}
			}
		}
		if lonely && s.Type.IsSocial() {
			score += 3
		}
		ranked = append(ranked, scored{s, score})
	}

	// insertion sort keeps equal scores in catalog order
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]suggestion, len(ranked))
	for i, r := range ranked {
		out[i] = r.s
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func toStrings(v interface{}) []string {
	switch t := v.(type) {
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
