package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"amble/internal/models"
	"amble/internal/store"
)

var moodReplies = map[models.Mood]string{
	models.MoodHappy:     "That's wonderful to hear! Your happiness brightens my day too.",
	models.MoodContent:   "Feeling content is a lovely place to be. Enjoy it.",
	models.MoodNeutral:   "Thank you for telling me. A calm, ordinary day has its own comfort.",
	models.MoodTired:     "Rest matters. Maybe a short nap or some quiet time would help.",
	models.MoodSad:       "I'm here with you. It's alright to feel sad. Would you like to talk about it?",
	models.MoodAnxious:   "Let's take a slow breath together. You're not alone, I'm right here.",
	models.MoodLonely:    "I understand. Shall we plan a call with someone you love?",
	models.MoodEnergetic: "How splendid! Do you have anything planned with all that energy?",
	models.MoodGrateful:  "Gratitude is a beautiful feeling. What are you thankful for today?",
}

type trackMoodArgs struct {
	Mood        string `json:"mood"`
	EnergyLevel *int   `json:"energy_level"`
	Details     string `json:"details"`
}

func (d *domainTools) trackMoodTool() *Tool {
	return &Tool{
		Name:        "track_mood",
		Description: "Logs how the user is feeling, with an energy level from 1 (exhausted) to 10 (full of energy).",
		Parameters: object(map[string]interface{}{
			"mood":         enum("The user's mood", models.Moods),
			"energy_level": integer("Energy from 1 to 10, defaults to 5"),
			"details":      str("Anything the user said about why they feel this way"),
		}, "mood"),
		Domain:  DomainMoods,
		Mutates: true,
		Handler: Typed(d.trackMood),
	}
}

func (d *domainTools) trackMood(ctx context.Context, inv Invocation, args trackMoodArgs) Result {
	mood, err := models.ParseMood(strings.ToLower(strings.TrimSpace(args.Mood)))
	if err != nil {
		return Errorf("%v", err)
	}
	energy := 5
	if args.EnergyLevel != nil {
		energy = *args.EnergyLevel
	}
	if energy < 1 || energy > 10 {
		return Errorf("energy_level must be between 1 and 10")
	}

	m := &models.MoodEntry{
		ID:          newID(),
		UserKey:     inv.UserKey,
		Mood:        mood,
		EnergyLevel: energy,
		Details:     strings.TrimSpace(args.Details),
		CreatedAt:   inv.Now.UTC(),
	}
	if err := d.Store.AddMood(ctx, m); err != nil {
		return Errorf("could not save mood: %v", err)
	}

	return Success(moodReplies[mood], map[string]interface{}{
		"mood_logged":  string(mood),
		"energy_level": energy,
	})
}

type daysArgs struct {
	Days int `json:"days"`
}

func (d *domainTools) moodHistoryTool() *Tool {
	return &Tool{
		Name:        "get_mood_history",
		Description: "Returns mood check-ins over the last few days with counts per mood, average energy and the overall trend.",
		Parameters: object(map[string]interface{}{
			"days": integer("Days to look back, defaults to 7"),
		}),
		Domain:  DomainMoods,
		Handler: Typed(d.moodHistory),
	}
}

func (d *domainTools) moodHistory(ctx context.Context, inv Invocation, args daysArgs) Result {
	days := daysOrDefault(args.Days, 7)
	moods, err := d.Store.ListMoods(ctx, inv.UserKey, store.Recent(inv.Now, time.Duration(days)*24*time.Hour))
	if err != nil {
		return Errorf("could not load moods: %v", err)
	}

	counts := map[string]int{}
	var energy float64
	for _, m := range moods {
		counts[string(m.Mood)]++
		energy += float64(m.EnergyLevel)
	}
	if len(moods) > 0 {
		energy /= float64(len(moods))
	}
	trend := moodTrend(moods, "positive", "concerning")

	msg := fmt.Sprintf("Over the last %d days you logged %d moods and the trend looks %s.", days, len(moods), trend)
	if len(moods) == 0 {
		msg = fmt.Sprintf("No moods were logged in the last %d days.", days)
	}
	return Success(msg, map[string]interface{}{
		"period_days":    days,
		"mood_counts":    counts,
		"average_energy": round1(energy),
		"trend":          trend,
		"total_entries":  len(moods),
	})
}

// moodTrend compares positive against negative entries. Ties are "stable".
func moodTrend(moods []models.MoodEntry, up, down string) string {
	var pos, neg int
	for _, m := range moods {
		switch v := m.Mood.Valence(); {
		case v > 0.5:
			pos++
		case v < 0:
			neg++
		}
	}
	switch {
	case pos > neg:
		return up
	case neg > pos:
		return down
	}
	return "stable"
}
