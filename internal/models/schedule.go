package models

// DayEvent is one round of the quiz: a time of day and what the person is doing.
type DayEvent struct {
	Time        string   `json:"time"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
}

// DefaultSchedule is the built-in 24 hour day.
func DefaultSchedule() []DayEvent {
	return []DayEvent{
		{Time: "02:00", Category: Resting, Description: "Deep night, the body is fully at rest."},
		{Time: "08:30", Category: LightActivity, Description: "An easy walk to work in the cool air."},
		{Time: "11:15", Category: Anomalous, Description: "Suddenly something does not feel right in the chest..."},
		{Time: "16:00", Category: HighExertion, Description: "An intense running workout in the park."},
		{Time: "19:45", Category: Anomalous, Description: "Irregular palpitations again in the evening."},
		{Time: "23:30", Category: Resting, Description: "End of the day, back to sleep and recovery."},
	}
}
