package miniapp

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalidCourse = errors.New("invalid course")

type Course struct {
	Name    string  `json:"name"`
	Credits float64 `json:"credits"`
	Score   float64 `json:"score"`
}

type CourseGrade struct {
	Course
	Letter string  `json:"letter"`
	Points float64 `json:"points"`
	Rating string  `json:"rating"`
}

type GradeReport struct {
	Courses      []CourseGrade `json:"courses"`
	TotalCredits float64       `json:"total_credits"`
	GPA          float64       `json:"gpa"`
	Average      float64       `json:"average"`
	Rating       string        `json:"rating"`
}

type gradeBand struct {
	min    float64
	letter string
	points float64
}

// gradeBands is the 4.0 scale, highest band first.
var gradeBands = []gradeBand{
	{95, "A+", 4.0},
	{90, "A", 3.75},
	{85, "B+", 3.5},
	{80, "B", 3.0},
	{75, "C+", 2.5},
	{70, "C", 2.0},
	{65, "D+", 1.5},
	{60, "D", 1.0},
	{0, "F", 0},
}

func letterFor(score float64) gradeBand {
	for _, band := range gradeBands {
		if score >= band.min {
			return band
		}
	}
	return gradeBands[len(gradeBands)-1]
}

func ratingFor(gpa float64) string {
	switch {
	case gpa >= 3.5:
		return "ممتاز"
	case gpa >= 3.0:
		return "جيد جداً"
	case gpa >= 2.5:
		return "جيد"
	case gpa >= 2.0:
		return "مقبول"
	default:
		return "ضعيف"
	}
}

// CalculateGrades weights every course by its credit hours.
func CalculateGrades(courses []Course) (GradeReport, error) {
	if len(courses) == 0 {
		return GradeReport{}, fmt.Errorf("%w: no courses", ErrInvalidCourse)
	}
	var (
		report        GradeReport
		weightedPts   float64
		weightedScore float64
	)
	for i, c := range courses {
		if c.Credits <= 0 || c.Score < 0 || c.Score > 100 {
			return GradeReport{}, fmt.Errorf("%w: course %d %q", ErrInvalidCourse, i+1, c.Name)
		}
		c.Name = strings.TrimSpace(c.Name)
		band := letterFor(c.Score)
		report.Courses = append(report.Courses, CourseGrade{
			Course: c,
			Letter: band.letter,
			Points: band.points,
			Rating: ratingFor(band.points),
		})
		report.TotalCredits += c.Credits
		weightedPts += band.points * c.Credits
		weightedScore += c.Score * c.Credits
	}
	report.GPA = round2(weightedPts / report.TotalCredits)
	report.Average = round2(weightedScore / report.TotalCredits)
	report.Rating = ratingFor(report.GPA)
	return report, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
