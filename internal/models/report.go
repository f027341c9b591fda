package models

import "time"

// Report is the prediction record a patient may share with a doctor.
type Report struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PatientID  uint      `gorm:"not null;index" json:"patient_id"`
	Diagnosis  string    `json:"diagnosis"`
	Confidence float64   `json:"confidence"`
	ImageURL   string    `json:"image_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReportShare records that a report was shared with a doctor.
type ReportShare struct {
	ReportID uint      `gorm:"primaryKey" json:"report_id"`
	DoctorID uint      `gorm:"primaryKey" json:"doctor_id"`
	SharedAt time.Time `gorm:"autoCreateTime" json:"shared_at"`
}
