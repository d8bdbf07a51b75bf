package models

import (
	"fmt"
	"time"
)

// ExpenseCategory classifies a tracked expense.
type ExpenseCategory string

const (
	ExpenseGroceries     ExpenseCategory = "groceries"
	ExpensePharmacy      ExpenseCategory = "pharmacy"
	ExpenseUtilities     ExpenseCategory = "utilities"
	ExpenseHealthcare    ExpenseCategory = "healthcare"
	ExpenseTransport     ExpenseCategory = "transport"
	ExpenseHousehold     ExpenseCategory = "household"
	ExpenseEntertainment ExpenseCategory = "entertainment"
	ExpenseFoodDining    ExpenseCategory = "food_dining"
	ExpensePersonalCare  ExpenseCategory = "personal_care"
	ExpenseOther         ExpenseCategory = "other"
)

// ExpenseCategories lists every accepted category in display order.
var ExpenseCategories = []ExpenseCategory{
	ExpenseGroceries, ExpensePharmacy, ExpenseUtilities, ExpenseHealthcare, ExpenseTransport,
	ExpenseHousehold, ExpenseEntertainment, ExpenseFoodDining, ExpensePersonalCare, ExpenseOther,
}

// Mood is the label of a mood check-in.
type Mood string

const (
	MoodHappy     Mood = "happy"
	MoodContent   Mood = "content"
	MoodNeutral   Mood = "neutral"
	MoodTired     Mood = "tired"
	MoodSad       Mood = "sad"
	MoodAnxious   Mood = "anxious"
	MoodLonely    Mood = "lonely"
	MoodEnergetic Mood = "energetic"
	MoodGrateful  Mood = "grateful"
)

// Moods lists every accepted mood.
var Moods = []Mood{
	MoodHappy, MoodContent, MoodNeutral, MoodTired, MoodSad,
	MoodAnxious, MoodLonely, MoodEnergetic, MoodGrateful,
}

// Valence maps a mood onto [-1, 1]. Unknown moods are neutral.
func (m Mood) Valence() float64 {
	switch m {
	case MoodHappy, MoodGrateful:
		return 1.0
	case MoodEnergetic:
		return 0.8
	case MoodContent:
		return 0.6
	case MoodTired:
		return -0.4
	case MoodAnxious, MoodLonely:
		return -0.8
	case MoodSad:
		return -1.0
	}
	return 0
}

// IsPositive reports whether the mood counts toward a positive trend.
func (m Mood) IsPositive() bool { return m.Valence() > 0.5 }

// IsConcerning reports whether the mood counts toward a concerning trend.
func (m Mood) IsConcerning() bool { return m.Valence() <= -0.8 }

// ActivityType classifies a recorded activity.
type ActivityType string

const (
	ActivityWalking         ActivityType = "walking"
	ActivityExercise        ActivityType = "exercise"
	ActivityReading         ActivityType = "reading"
	ActivityGardening       ActivityType = "gardening"
	ActivityCooking         ActivityType = "cooking"
	ActivitySocial          ActivityType = "social"
	ActivityHobby           ActivityType = "hobby"
	ActivityMeditation      ActivityType = "meditation"
	ActivityShopping        ActivityType = "shopping"
	ActivityReligious       ActivityType = "religious"
	ActivityTVEntertainment ActivityType = "tv_entertainment"
	ActivityPhoneCall       ActivityType = "phone_call"
	ActivityOther           ActivityType = "other"
)

// ActivityTypes lists every accepted activity type.
var ActivityTypes = []ActivityType{
	ActivityWalking, ActivityExercise, ActivityReading, ActivityGardening, ActivityCooking,
	ActivitySocial, ActivityHobby, ActivityMeditation, ActivityShopping, ActivityReligious,
	ActivityTVEntertainment, ActivityPhoneCall, ActivityOther,
}

// IsSocial reports whether the activity involved contact with other people.
func (a ActivityType) IsSocial() bool {
	return a == ActivitySocial || a == ActivityPhoneCall
}

// AppointmentType classifies an appointment.
type AppointmentType string

const (
	AppointmentDoctor         AppointmentType = "doctor"
	AppointmentDentist        AppointmentType = "dentist"
	AppointmentSpecialist     AppointmentType = "specialist"
	AppointmentLabTest        AppointmentType = "lab_test"
	AppointmentPharmacyPickup AppointmentType = "pharmacy_pickup"
	AppointmentPersonal       AppointmentType = "personal"
	AppointmentSocial         AppointmentType = "social"
	AppointmentOther          AppointmentType = "other"
)

// AppointmentTypes lists every accepted appointment type.
var AppointmentTypes = []AppointmentType{
	AppointmentDoctor, AppointmentDentist, AppointmentSpecialist, AppointmentLabTest,
	AppointmentPharmacyPickup, AppointmentPersonal, AppointmentSocial, AppointmentOther,
}

// AppointmentStatus only ever moves from scheduled to cancelled.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Expense is one tracked spending entry.
type Expense struct {
	ID          string          `bson:"_id" json:"id"`
	UserKey     string          `bson:"userKey" json:"user_key"`
	Amount      float64         `bson:"amount" json:"amount"`
	Category    ExpenseCategory `bson:"category" json:"category"`
	Description string          `bson:"description" json:"description"`
	CreatedAt   time.Time       `bson:"createdAt" json:"timestamp"`
}

// MoodEntry is one mood check-in.
type MoodEntry struct {
	ID          string    `bson:"_id" json:"id"`
	UserKey     string    `bson:"userKey" json:"user_key"`
	Mood        Mood      `bson:"mood" json:"mood"`
	EnergyLevel int       `bson:"energyLevel" json:"energy_level"`
	Details     string    `bson:"details" json:"details"`
	CreatedAt   time.Time `bson:"createdAt" json:"timestamp"`
}

// Activity is one recorded activity.
type Activity struct {
	ID              string       `bson:"_id" json:"id"`
	UserKey         string       `bson:"userKey" json:"user_key"`
	Name            string       `bson:"name" json:"activity_name"`
	Type            ActivityType `bson:"type" json:"activity_type"`
	DurationMinutes int          `bson:"durationMinutes" json:"duration_minutes"`
	Notes           string       `bson:"notes" json:"notes"`
	CreatedAt       time.Time    `bson:"createdAt" json:"timestamp"`
}

// Appointment is a scheduled event. Status and Reminded are the only mutable fields.
type Appointment struct {
	ID         string            `bson:"_id" json:"id"`
	UserKey    string            `bson:"userKey" json:"user_key"`
	Title      string            `bson:"title" json:"title"`
	Type       AppointmentType   `bson:"type" json:"appointment_type"`
	DateTime   time.Time         `bson:"dateTime" json:"date_time"`
	Location   string            `bson:"location" json:"location"`
	DoctorName string            `bson:"doctorName" json:"doctor_name"`
	Notes      string            `bson:"notes" json:"notes"`
	Status     AppointmentStatus `bson:"status" json:"status"`
	Reminded   bool              `bson:"reminded" json:"reminded"`
	CreatedAt  time.Time         `bson:"createdAt" json:"created_at"`
}

// ParseExpenseCategory validates a category name.
func ParseExpenseCategory(s string) (ExpenseCategory, error) {
	for _, c := range ExpenseCategories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid expense category %q", s)
}

// ParseMood validates a mood label.
func ParseMood(s string) (Mood, error) {
	for _, m := range Moods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("invalid mood %q", s)
}

// ParseActivityType validates an activity type.
func ParseActivityType(s string) (ActivityType, error) {
	for _, a := range ActivityTypes {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("invalid activity type %q", s)
}

// ParseAppointmentType validates an appointment type.
func ParseAppointmentType(s string) (AppointmentType, error) {
	for _, a := range AppointmentTypes {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("invalid appointment type %q", s)
}
