package repository

import (
	"context"

	"dermai/internal/models"
	"dermai/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReportRepository stores prediction reports and who they were shared with.
type ReportRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Report, error)
	Create(ctx context.Context, report *models.Report) error
	// Share records the report/doctor pair. It returns false when the pair already exists.
	Share(ctx context.Context, reportID, doctorID uint) (bool, error)
	IsShared(ctx context.Context, reportID, doctorID uint) (bool, error)
}

type reportRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db, log: observability.NewRepoLogger("reports")}
}

func (r *reportRepository) GetByID(ctx context.Context, id uint) (*models.Report, error) {
	var report models.Report
	if err := r.db.WithContext(ctx).First(&report, id).Error; err != nil {
		return nil, translateError(err, "Report", id)
	}
	return &report, nil
}

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *reportRepository) Share(ctx context.Context, reportID, doctorID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ReportShare{ReportID: reportID, DoctorID: doctorID})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, nil
		}
		return false, models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	r.log.LogCreate(ctx, map[string]interface{}{"report_id": reportID, "doctor_id": doctorID})
	return true, nil
}

func (r *reportRepository) IsShared(ctx context.Context, reportID, doctorID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ReportShare{}).
		Where("report_id = ? AND doctor_id = ?", reportID, doctorID).
		Count(&n).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}
