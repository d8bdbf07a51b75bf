package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"amble/internal/models"
	"amble/internal/store"
)

type recordActivityArgs struct {
	ActivityName    string `json:"activity_name"`
	ActivityType    string `json:"activity_type"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes"`
}

func (d *domainTools) recordActivityTool() *Tool {
	return &Tool{
		Name:        "record_activity",
		Description: "Records something the user did, such as a walk, a phone call with family, gardening or prayer.",
		Parameters: object(map[string]interface{}{
			"activity_name":    str("Short name of the activity, e.g. 'Evening walk in the park'"),
			"activity_type":    enum("Kind of activity", models.ActivityTypes),
			"duration_minutes": integer("How long it lasted in minutes"),
			"notes":            str("Optional notes"),
		}, "activity_name", "activity_type"),
		Domain:  DomainActivities,
		Mutates: true,
		Handler: Typed(d.recordActivity),
	}
}

func (d *domainTools) recordActivity(ctx context.Context, inv Invocation, args recordActivityArgs) Result {
	name := strings.TrimSpace(args.ActivityName)
	if name == "" {
		return Errorf("activity_name is required")
	}
	kind, err := models.ParseActivityType(strings.ToLower(strings.TrimSpace(args.ActivityType)))
	if err != nil {
		return Errorf("%v", err)
	}
	if args.DurationMinutes < 0 {
		return Errorf("duration_minutes cannot be negative")
	}

	a := &models.Activity{
		ID:              newID(),
		UserKey:         inv.UserKey,
		Name:            name,
		Type:            kind,
		DurationMinutes: args.DurationMinutes,
		Notes:           strings.TrimSpace(args.Notes),
		CreatedAt:       inv.Now.UTC(),
	}
	if err := d.Store.AddActivity(ctx, a); err != nil {
		return Errorf("could not save activity: %v", err)
	}

	return Success(activityReply(a), map[string]interface{}{"activity_id": a.ID})
}

func activityReply(a *models.Activity) string {
	switch {
	case a.Type == models.ActivityWalking || a.Type == models.ActivityExercise:
		return fmt.Sprintf("Splendid! %d minutes of %s is wonderful for your health. Keep it up!", a.DurationMinutes, a.Name)
	case a.Type.IsSocial():
		return "How lovely! Staying in touch with people matters so much. I hope you enjoyed it."
	case a.Type == models.ActivityMeditation || a.Type == models.ActivityReligious:
		return fmt.Sprintf("Beautiful. Time for %s nourishes the soul.", a.Name)
	}
	return fmt.Sprintf("Noted! Your %s for %d minutes has been recorded.", a.Name, a.DurationMinutes)
}

func (d *domainTools) activityHistoryTool() *Tool {
	return &Tool{
		Name:        "get_activity_history",
		Description: "Returns activities over the last few days with counts and minutes per type and the total active minutes.",
		Parameters: object(map[string]interface{}{
			"days": integer("Days to look back, defaults to 7"),
		}),
		Domain:  DomainActivities,
		Handler: Typed(d.activityHistory),
	}
}

type typeTotals struct {
	Count   int `json:"count"`
	Minutes int `json:"minutes"`
}

func (d *domainTools) activityHistory(ctx context.Context, inv Invocation, args daysArgs) Result {
	days := daysOrDefault(args.Days, 7)
	acts, err := d.Store.ListActivities(ctx, inv.UserKey, store.Recent(inv.Now, time.Duration(days)*24*time.Hour))
	if err != nil {
		return Errorf("could not load activities: %v", err)
	}

	byType := map[string]typeTotals{}
	total := 0
	recent := make([]map[string]interface{}, 0, 10)
	for i, a := range acts {
		t := byType[string(a.Type)]
		t.Count++
		t.Minutes += a.DurationMinutes
		byType[string(a.Type)] = t
		total += a.DurationMinutes
		if i < 10 {
			recent = append(recent, map[string]interface{}{
				"activity_name":    a.Name,
				"activity_type":    string(a.Type),
				"duration_minutes": a.DurationMinutes,
				"timestamp":        a.CreatedAt,
			})
		}
	}

	return Success(
		fmt.Sprintf("%d activities and %d active minutes in the last %d days.", len(acts), total, days),
		map[string]interface{}{
			"period_days":          days,
			"total_activities":     len(acts),
			"total_active_minutes": total,
			"by_type":              byType,
			"recent":               recent,
		},
	)
}
