package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"settlement-service/internal/event"
	"settlement-service/internal/models"
	"settlement-service/internal/repository"
	"settlement-service/internal/settlement"
	"settlement-service/internal/utils"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type SettlementHandler struct {
	orchestrator   *settlement.Orchestrator
	publisher      *event.Publisher
	policyRepo     *repository.PolicyRepository
	assessmentRepo *repository.AssessmentRepository
	payoutRepo     *repository.PayoutRepository
}

func NewSettlementHandler(
	orchestrator *settlement.Orchestrator,
	publisher *event.Publisher,
	policyRepo *repository.PolicyRepository,
	assessmentRepo *repository.AssessmentRepository,
	payoutRepo *repository.PayoutRepository,
) *SettlementHandler {
	return &SettlementHandler{
		orchestrator:   orchestrator,
		publisher:      publisher,
		policyRepo:     policyRepo,
		assessmentRepo: assessmentRepo,
		payoutRepo:     payoutRepo,
	}
}

func (h *SettlementHandler) Register(app *fiber.App) {
	api := app.Group("settlement/api/v1")

	// Settlement routes
	api.Post("/settlements/settle", h.Settle)           // synchronous settlement of one trigger
	api.Post("/settlements/trigger", h.SimulateTrigger) // enqueue a trigger for async settlement

	// Policy routes
	policyGroup := api.Group("/policies")
	policyGroup.Post("/", h.CreatePolicy)
	policyGroup.Get("/:id", h.GetPolicy)
	policyGroup.Post("/:id/activate", h.ActivatePolicy)
	policyGroup.Get("/:policy_id/assessments", h.GetPolicyAssessments)
	policyGroup.Get("/:policy_id/payouts", h.GetPolicyPayouts)

	// Read routes
	api.Get("/assessments/:id", h.GetAssessment)
	api.Get("/payouts/:id", h.GetPayout)
}

// Settle runs the full settlement pipeline synchronously and returns the
// assessment, payout, and evidence proof.
func (h *SettlementHandler) Settle(c fiber.Ctx) error {
	var req models.SettleRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_BODY", "Invalid request body"))
	}

	if req.PolicyID == uuid.Nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("MISSING_POLICY_ID", "policy_id is required"))
	}

	result, err := h.orchestrator.Settle(c.Context(), req)
	if err != nil {
		return settlementError(c, req.PolicyID, err)
	}

	status := http.StatusCreated
	if result.AlreadySettled {
		status = http.StatusOK
	}
	return c.Status(status).JSON(utils.CreateSuccessResponse(result))
}

// SimulateTrigger enqueues a damage trigger onto the calculation queue
// instead of settling inline.
func (h *SettlementHandler) SimulateTrigger(c fiber.Ctx) error {
	var req models.SimulateTriggerRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_BODY", "Invalid request body"))
	}

	if req.PolicyID == uuid.Nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("MISSING_POLICY_ID", "policy_id is required"))
	}

	triggerDate := req.TriggerDate
	if triggerDate == 0 {
		triggerDate = time.Now().Unix()
	}

	msg := event.DamageTriggerMessage{
		PolicyID:           req.PolicyID,
		TriggerType:        models.TriggerSimulated,
		WeatherStressIndex: req.WeatherStressIndex,
		VegetationIndex:    req.VegetationIndex,
		TriggerDate:        triggerDate,
	}
	if err := h.publisher.PublishDamageTrigger(c.Context(), msg); err != nil {
		slog.Error("Failed to publish damage trigger", "policy_id", req.PolicyID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("PUBLISH_FAILED", "Failed to enqueue trigger"))
	}

	return c.Status(http.StatusAccepted).JSON(utils.CreateSuccessResponse(map[string]interface{}{
		"policy_id":    req.PolicyID,
		"trigger_date": triggerDate,
		"queued":       true,
	}))
}

// CreatePolicy registers a new policy in pending_payment.
func (h *SettlementHandler) CreatePolicy(c fiber.Ctx) error {
	var req models.CreatePolicyRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_BODY", "Invalid request body"))
	}

	if req.PolicyNumber == "" || req.FarmerID == "" || req.SumInsured <= 0 {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_POLICY", "policy_number, farmer_id and a positive sum_insured are required"))
	}
	if req.CoverageEndDate <= req.CoverageStartDate {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_COVERAGE_PERIOD", "coverage_end_date must be after coverage_start_date"))
	}

	policy := &models.Policy{
		ID:                uuid.New(),
		PolicyNumber:      req.PolicyNumber,
		FarmerID:          req.FarmerID,
		FarmerPhone:       req.FarmerPhone,
		PlotID:            req.PlotID,
		CoverageType:      req.CoverageType,
		SumInsured:        req.SumInsured,
		Premium:           req.Premium,
		CoverageStartDate: req.CoverageStartDate,
		CoverageEndDate:   req.CoverageEndDate,
		Status:            models.PolicyPendingPayment,
	}

	if err := h.policyRepo.Create(c.Context(), policy); err != nil {
		slog.Error("Failed to create policy", "policy_number", req.PolicyNumber, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("CREATE_FAILED", "Failed to create policy"))
	}

	return c.Status(http.StatusCreated).JSON(utils.CreateSuccessResponse(policy))
}

// ActivatePolicy moves a pending_payment policy to active after premium
// confirmation.
func (h *SettlementHandler) ActivatePolicy(c fiber.Ctx) error {
	policyID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_UUID", "Invalid policy ID format"))
	}

	if err := h.policyRepo.ActivateOnPremiumConfirmation(c.Context(), policyID); err != nil {
		slog.Warn("Failed to activate policy", "policy_id", policyID, "error", err)
		return c.Status(http.StatusConflict).JSON(
			utils.CreateErrorResponse("ACTIVATION_REFUSED", "Policy is not pending payment"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]interface{}{
		"policy_id": policyID,
		"status":    models.PolicyActive,
	}))
}

func (h *SettlementHandler) GetPolicy(c fiber.Ctx) error {
	policyID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_UUID", "Invalid policy ID format"))
	}

	policy, err := h.policyRepo.GetByID(c.Context(), policyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(http.StatusNotFound).JSON(
				utils.CreateErrorResponse("NOT_FOUND", "Policy not found"))
		}
		slog.Error("Failed to get policy", "policy_id", policyID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("RETRIEVAL_FAILED", "Failed to retrieve policy"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(policy))
}

func (h *SettlementHandler) GetAssessment(c fiber.Ctx) error {
	assessmentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_UUID", "Invalid assessment ID format"))
	}

	assessment, err := h.assessmentRepo.GetByID(c.Context(), assessmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(http.StatusNotFound).JSON(
				utils.CreateErrorResponse("NOT_FOUND", "Assessment not found"))
		}
		slog.Error("Failed to get assessment", "assessment_id", assessmentID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("RETRIEVAL_FAILED", "Failed to retrieve assessment"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(assessment))
}

func (h *SettlementHandler) GetPolicyAssessments(c fiber.Ctx) error {
	policyID, err := uuid.Parse(c.Params("policy_id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_UUID", "Invalid policy ID format"))
	}

	assessments, err := h.assessmentRepo.GetByPolicyID(c.Context(), policyID)
	if err != nil {
		slog.Error("Failed to get assessments", "policy_id", policyID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("RETRIEVAL_FAILED", "Failed to retrieve assessments"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]interface{}{
		"assessments": assessments,
		"count":       len(assessments),
		"policy_id":   policyID,
	}))
}

func (h *SettlementHandler) GetPayout(c fiber.Ctx) error {
	payoutID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_UUID", "Invalid payout ID format"))
	}

	payout, err := h.payoutRepo.GetByID(c.Context(), payoutID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(http.StatusNotFound).JSON(
				utils.CreateErrorResponse("NOT_FOUND", "Payout not found"))
		}
		slog.Error("Failed to get payout", "payout_id", payoutID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("RETRIEVAL_FAILED", "Failed to retrieve payout"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(payout))
}

func (h *SettlementHandler) GetPolicyPayouts(c fiber.Ctx) error {
	policyID, err := uuid.Parse(c.Params("policy_id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_UUID", "Invalid policy ID format"))
	}

	payouts, err := h.payoutRepo.GetByPolicyID(c.Context(), policyID)
	if err != nil {
		slog.Error("Failed to get payouts", "policy_id", policyID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("RETRIEVAL_FAILED", "Failed to retrieve payouts"))
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]interface{}{
		"payouts":   payouts,
		"count":     len(payouts),
		"policy_id": policyID,
	}))
}

// settlementError maps the settlement error taxonomy onto HTTP statuses.
func settlementError(c fiber.Ctx, policyID uuid.UUID, err error) error {
	switch {
	case errors.Is(err, settlement.ErrPolicyNotFound):
		return c.Status(http.StatusNotFound).JSON(
			utils.CreateErrorResponse("POLICY_NOT_FOUND", "Policy not found"))
	case errors.Is(err, settlement.ErrPolicyNotActive):
		return c.Status(http.StatusConflict).JSON(
			utils.CreateErrorResponse("POLICY_NOT_ACTIVE", err.Error()))
	case errors.Is(err, settlement.ErrTriggerOutsideCoverage):
		return c.Status(http.StatusUnprocessableEntity).JSON(
			utils.CreateErrorResponse("OUTSIDE_COVERAGE_PERIOD", err.Error()))
	case errors.Is(err, settlement.ErrInvalidInputRange):
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_INDEX_RANGE", err.Error()))
	case errors.Is(err, settlement.ErrCoverageExhausted):
		return c.Status(http.StatusConflict).JSON(
			utils.CreateErrorResponse("COVERAGE_EXHAUSTED", "Sum insured is fully consumed by prior payouts"))
	default:
		slog.Error("Settlement failed", "policy_id", policyID, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("SETTLEMENT_FAILED", "Failed to settle trigger"))
	}
}
