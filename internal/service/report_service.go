package service

import (
	"context"

	"dermai/internal/models"
	"dermai/internal/observability"
	"dermai/internal/repository"
)

// ReportService shares a patient's report with a doctor and opens the
// report-scoped conversation for them.
type ReportService struct {
	reports       repository.ReportRepository
	users         repository.UserRepository
	convs         repository.ConversationRepository
	notifications *NotificationService
}

func NewReportService(
	reports repository.ReportRepository,
	users repository.UserRepository,
	convs repository.ConversationRepository,
	notificationService *NotificationService,
) *ReportService {
	return &ReportService{reports: reports, users: users, convs: convs, notifications: notificationService}
}

// ShareReport records the share, finds or creates the (doctor, patient, report)
// conversation and notifies the doctor. A share whose conversation was never
// created is completed on retry rather than rejected.
func (s *ReportService) ShareReport(ctx context.Context, patientID, reportID, doctorID uint) (conv *models.Conversation, err error) {
	ctx, span := observability.GetTraceLayer().TraceServiceCall(ctx, "ReportService", "ShareReport")
	defer func() { observability.EndSpan(span, err) }()

	patient, err := s.users.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.Role != models.RolePatient {
		return nil, models.NewForbiddenError("Only patients can share reports")
	}
	if doctorID == 0 {
		return nil, models.NewValidationError("Doctor ID is required")
	}

	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.PatientID != patient.ID {
		return nil, models.NewForbiddenError("Not authorized to share this report")
	}

	doctor, err := s.users.GetByID(ctx, doctorID)
	if err != nil || doctor.Role != models.RoleDoctor {
		if err != nil && models.CodeOf(err) != models.CodeNotFound {
			return nil, err
		}
		return nil, models.NewNotFoundError("Doctor", doctorID)
	}

	shared, err := s.reports.Share(ctx, report.ID, doctor.ID)
	if err != nil {
		return nil, err
	}

	conv, created, err := s.convs.FindOrCreate(ctx, doctor.ID, patient.ID, report.ID)
	if err != nil {
		return nil, err
	}
	if !shared && !created {
		return nil, models.NewValidationError("Report already shared with this doctor")
	}

	if s.notifications != nil {
		if _, nerr := s.notifications.Notify(ctx, doctor.ID, models.NotificationReportShared,
			"New Report Shared", patient.DisplayName()+" shared a report with you",
			report.ID, models.RelatedReport); nerr != nil {
			observability.GlobalLogger.ErrorContext(ctx, "failed to create notification",
				"user_id", doctor.ID, "type", models.NotificationReportShared, "error", nerr.Error())
		}
	}

	return conv, nil
}
