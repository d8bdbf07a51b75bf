package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"amble/internal/models"
	"amble/internal/store"
)

type scheduleAppointmentArgs struct {
	Title           string `json:"title"`
	AppointmentType string `json:"appointment_type"`
	DateTime        string `json:"date_time"`
	Location        string `json:"location"`
	DoctorName      string `json:"doctor_name"`
	Notes           string `json:"notes"`
}

func (d *domainTools) scheduleAppointmentTool() *Tool {
	return &Tool{
		Name:        "schedule_appointment",
		Description: "Schedules an appointment such as a doctor's visit, lab test or family lunch. Times are in the user's local timezone.",
		Parameters: object(map[string]interface{}{
			"title":            str("What the appointment is, e.g. 'Cardiology check-up'"),
			"appointment_type": enum("Kind of appointment", models.AppointmentTypes),
			"date_time":        str("When it is: 'YYYY-MM-DD HH:MM', 'tomorrow 10:30' or an RFC3339 timestamp"),
			"location":         str("Where it takes place"),
			"doctor_name":      str("Doctor's name, when relevant"),
			"notes":            str("Anything to remember for the appointment"),
		}, "title", "appointment_type", "date_time"),
		Domain:  DomainAppointments,
		Mutates: true,
		Handler: Typed(d.scheduleAppointment),
	}
}

func (d *domainTools) scheduleAppointment(ctx context.Context, inv Invocation, args scheduleAppointmentArgs) Result {
	title := strings.TrimSpace(args.Title)
	if title == "" {
		return Errorf("title is required")
	}
	kind, err := models.ParseAppointmentType(strings.ToLower(strings.TrimSpace(args.AppointmentType)))
	if err != nil {
		return Errorf("%v", err)
	}

	loc := d.location(ctx, inv)
	at, err := ParseDateTime(args.DateTime, inv.Now, loc)
	if err != nil {
		return Errorf("%v", err)
	}
	if !at.After(inv.Now) {
		return Errorf("%s is in the past, please give a future date and time", at.Format("Mon 2 Jan 2006 3:04 PM"))
	}

	a := &models.Appointment{
		ID:         newID(),
		UserKey:    inv.UserKey,
		Title:      title,
		Type:       kind,
		DateTime:   at.UTC(),
		Location:   strings.TrimSpace(args.Location),
		DoctorName: strings.TrimSpace(args.DoctorName),
		Notes:      strings.TrimSpace(args.Notes),
		Status:     models.AppointmentScheduled,
		CreatedAt:  inv.Now.UTC(),
	}
	if err := d.Store.AddAppointment(ctx, a); err != nil {
		return Errorf("could not save appointment: %v", err)
	}

	where := ""
	if a.Location != "" {
		where = " at " + a.Location
	}
	return Success(
		fmt.Sprintf("I've scheduled your %s for %s%s. I'll remind you when it's close.", title, at.Format("Mon 2 Jan, 3:04 PM"), where),
		map[string]interface{}{"appointment_id": a.ID, "date_time": at.Format(time.RFC3339)},
	)
}

type upcomingArgs struct {
	DaysAhead int `json:"days_ahead"`
}

func (d *domainTools) upcomingAppointmentsTool() *Tool {
	return &Tool{
		Name:        "get_upcoming_appointments",
		Description: "Lists scheduled appointments in the coming days, soonest first. Cancelled appointments are left out.",
		Parameters: object(map[string]interface{}{
			"days_ahead": integer("How many days ahead to look, defaults to 7"),
		}),
		Domain:  DomainAppointments,
		Handler: Typed(d.upcomingAppointments),
	}
}

func (d *domainTools) upcomingAppointments(ctx context.Context, inv Invocation, args upcomingArgs) Result {
	days := daysOrDefault(args.DaysAhead, 7)
	appts, err := d.Store.ListAppointments(ctx, inv.UserKey, store.AppointmentFilter{
		Status: models.AppointmentScheduled,
		From:   inv.Now,
		To:     inv.Now.Add(time.Duration(days) * 24 * time.Hour),
	})
	if err != nil {
		return Errorf("could not load appointments: %v", err)
	}

	if len(appts) == 0 {
		return Success(fmt.Sprintf("You have no appointments in the next %d days.", days),
			map[string]interface{}{"appointments": []interface{}{}, "days_ahead": days})
	}

	loc := d.location(ctx, inv)
	list := make([]map[string]interface{}, len(appts))
	for i, a := range appts {
		list[i] = map[string]interface{}{
			"id":               a.ID,
			"title":            a.Title,
			"appointment_type": string(a.Type),
			"date_time":        a.DateTime.In(loc).Format(time.RFC3339),
			"location":         a.Location,
			"doctor_name":      a.DoctorName,
			"notes":            a.Notes,
		}
	}
	return Success(fmt.Sprintf("You have %d appointment(s) coming up.", len(appts)),
		map[string]interface{}{"appointments": list, "days_ahead": days})
}

type cancelArgs struct {
	AppointmentID string `json:"appointment_id"`
}

func (d *domainTools) cancelAppointmentTool() *Tool {
	return &Tool{
		Name:        "cancel_appointment",
		Description: "Cancels an appointment by id. Look the id up with get_upcoming_appointments first.",
		Parameters: object(map[string]interface{}{
			"appointment_id": str("Id of the appointment to cancel"),
		}, "appointment_id"),
		Domain:  DomainAppointments,
		Mutates: true,
		Handler: Typed(d.cancelAppointment),
	}
}

func (d *domainTools) cancelAppointment(ctx context.Context, inv Invocation, args cancelArgs) Result {
	id := strings.TrimSpace(args.AppointmentID)
	if id == "" {
		return Errorf("appointment_id is required")
	}

	changed, err := d.Store.CancelAppointment(ctx, inv.UserKey, id)
	if errors.Is(err, store.ErrNotFound) {
		return NotFound("I couldn't find that appointment. Shall I list your upcoming appointments?")
	}
	if err != nil {
		return Errorf("could not cancel appointment: %v", err)
	}

	title := id
	if a, err := d.Store.GetAppointment(ctx, inv.UserKey, id); err == nil {
		title = a.Title
	}
	msg := fmt.Sprintf("I've cancelled your appointment: %s.", title)
	if !changed {
		msg = fmt.Sprintf("Your appointment %s was already cancelled.", title)
	}
	return Success(msg, map[string]interface{}{"appointment_id": id, "changed": changed})
}
