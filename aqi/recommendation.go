package aqi

import (
	"airquality-service/models"
)

var recommendations = map[string]models.HealthNote{
	"Good": {
		Short:   "Air quality is satisfactory.",
		Details: "It's a great day to be active outside.",
	},
	"Moderate": {
		Short:   "Acceptable air quality.",
		Details: "Unusually sensitive individuals: Consider reducing prolonged or heavy exertion outdoors.",
	},
	"Unhealthy for Sensitive Groups": {
		Short:   "Sensitive groups may experience health effects.",
		Details: "**Sensitive groups (heart/lung disease, older adults, children):** Reduce prolonged/heavy exertion outdoors. Take more breaks.\n\n**General public:** Okay outside, watch for symptoms.",
	},
	"Unhealthy": {
		Short:   "Some may experience health effects; sensitive groups more serious effects.",
		Details: "**Sensitive groups:** Avoid prolonged/heavy exertion outdoors. Move activities indoors or reschedule.\n\n**General public:** Reduce prolonged/heavy exertion outdoors.",
	},
	"Very Unhealthy": {
		Short:   "Health alert: Increased risk for everyone.",
		Details: "**Sensitive groups:** Avoid all physical activity outdoors. Move activities indoors.\n\n**General public:** Avoid prolonged/heavy exertion. Consider moving activities indoors.",
	},
	"Hazardous": {
		Short:   "Health warning: Emergency conditions.",
		Details: "**Everyone:** Avoid all physical activity outdoors.\n\n**Sensitive groups:** Remain indoors, keep activity low.",
	},
	UnknownLabel: {
		Short:   "AQI category could not be determined.",
		Details: "Health recommendations unavailable.",
	},
}

// Recommendation returns the health note for a US AQI category label.
// Unrecognised labels get the Unknown note.
func Recommendation(label string) models.HealthNote {
	if note, ok := recommendations[label]; ok {
		return note
	}
	return recommendations[UnknownLabel]
}

// TextColor picks a readable foreground for a category badge
func TextColor(label string) string {
	if label == "Good" || label == "Moderate" {
		return "#000000"
	}
	return "#FFFFFF"
}
