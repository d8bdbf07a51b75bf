package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"amble/internal/models"
	"amble/internal/store"
	"amble/internal/wellness"
)

func (d *domainTools) analyzeWellnessTool() *Tool {
	return &Tool{
		Name:        "analyze_wellness_patterns",
		Description: "Looks for concerning patterns over recent days: declining mood, less activity, no social contact, missed appointments and low energy.",
		Parameters: object(map[string]interface{}{
			"days": integer("Days to analyse, usually 7 or 30"),
		}),
		Domain:  DomainWellness,
		Handler: Typed(d.analyzeWellness),
	}
}

func (d *domainTools) analyzeWellness(ctx context.Context, inv Invocation, args daysArgs) Result {
	if d.Analyzer == nil {
		return Errorf("wellness analysis is not available")
	}
	report, err := d.Analyzer.Analyze(ctx, inv.UserKey, wellness.ClampLookback(args.Days), inv.Now)
	if err != nil {
		return Errorf("could not analyse wellness: %v", err)
	}

	signals := make([]map[string]interface{}, len(report.Signals))
	for i, s := range report.Signals {
		signals[i] = map[string]interface{}{
			"kind":             s.Kind,
			"severity":         string(s.Severity),
			"value":            s.Value,
			"threshold":        s.Threshold,
			"message":          s.Message,
			"suggested_action": s.SuggestedAction,
		}
	}
	msg := fmt.Sprintf("Everything looks steady over the last %d days.", report.LookbackDays)
	if len(report.Signals) > 0 {
		msg = fmt.Sprintf("I noticed %d thing(s) worth gently mentioning from the last %d days.", len(report.Signals), report.LookbackDays)
	}
	return Success(msg, map[string]interface{}{
		"lookback_days": report.LookbackDays,
		"signals":       signals,
		"summary":       report.Summary,
	})
}

type familyAlertArgs struct {
	Message  string `json:"message"`
	Urgency  string `json:"urgency"`
	Category string `json:"category"`
}

func (d *domainTools) sendFamilyAlertTool() *Tool {
	return &Tool{
		Name:        "send_family_alert",
		Description: "Sends an update to the user's family. Use high or critical urgency only for health or safety concerns.",
		Parameters: object(map[string]interface{}{
			"message":  str("What the family should know"),
			"urgency":  enum("How urgent it is, defaults to low", models.Urgencies),
			"category": str("Topic of the alert, e.g. 'health', 'wellness', 'appointment'"),
		}, "message"),
		Domain:  DomainAlerts,
		Mutates: true,
		Handler: Typed(d.sendFamilyAlert),
	}
}

func (d *domainTools) sendFamilyAlert(ctx context.Context, inv Invocation, args familyAlertArgs) Result {
	if d.Router == nil {
		return Errorf("family alerts are not available")
	}
	msg := strings.TrimSpace(args.Message)
	if msg == "" {
		return Errorf("message is required")
	}
	urgency := models.UrgencyLow
	if args.Urgency != "" {
		u, err := models.ParseUrgency(strings.ToLower(args.Urgency))
		if err != nil {
			return Errorf("%v", err)
		}
		urgency = u
	}

	_, alert, err := d.Router.Route(ctx, inv.UserKey, msg, urgency, strings.TrimSpace(args.Category))
	if err != nil {
		return Errorf("could not send the alert: %v", err)
	}
	return Success(fmt.Sprintf("I've shared this with your family: '%s'", msg), map[string]interface{}{
		"alert_id": alert.ID,
		"urgency":  string(alert.Urgency),
		"category": alert.Category,
	})
}

func (d *domainTools) familyAlertsHistoryTool() *Tool {
	return &Tool{
		Name:        "get_family_alerts_history",
		Description: "Lists alerts sent to the family recently, newest first.",
		Parameters: object(map[string]interface{}{
			"days": integer("Days to look back, defaults to 7"),
		}),
		Domain:  DomainAlerts,
		Handler: Typed(d.familyAlertsHistory),
	}
}

func (d *domainTools) familyAlertsHistory(ctx context.Context, inv Invocation, args daysArgs) Result {
	days := daysOrDefault(args.Days, 7)
	alerts, err := d.Store.ListAlerts(ctx, inv.UserKey, store.Recent(inv.Now, time.Duration(days)*24*time.Hour))
	if err != nil {
		return Errorf("could not load alerts: %v", err)
	}
	list := make([]map[string]interface{}, len(alerts))
	for i, a := range alerts {
		list[i] = map[string]interface{}{
			"id":        a.ID,
			"message":   a.Message,
			"urgency":   string(a.Urgency),
			"category":  a.Category,
			"read":      a.Read,
			"timestamp": a.CreatedAt,
		}
	}
	return Success(fmt.Sprintf("%d alert(s) in the last %d days.", len(alerts), days),
		map[string]interface{}{"alerts": list, "period_days": days})
}
