package model

import "github.com/lib/pq"

// HospitalCount is one row of the active-doctor leaderboard.
type HospitalCount struct {
	Hospital string `json:"_id" db:"hospital"`
	Count    int    `json:"count" db:"count"`
}

// HospitalStats aggregates the doctors affiliated with one hospital.
type HospitalStats struct {
	Hospital        string         `json:"_id" db:"hospital"`
	TotalDoctors    int            `json:"totalDoctors" db:"total_doctors"`
	ActiveDoctors   int            `json:"activeDoctors" db:"active_doctors"`
	Specializations pq.StringArray `json:"specializations" db:"specializations"`
}

type StatsSummary struct {
	TotalHospitals  int `json:"totalHospitals"`
	TotalDoctors    int `json:"totalDoctors"`
	ActiveDoctors   int `json:"activeDoctors"`
	InactiveDoctors int `json:"inactiveDoctors"`
}

type HospitalReport struct {
	Summary   StatsSummary    `json:"summary"`
	Hospitals []HospitalStats `json:"hospitals"`
}
