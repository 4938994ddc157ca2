package payrunerrors

import (
	"net/http"

	"gigpay/internal/shared/apperror"
)

var (
	ErrInvalidCompanyID = apperror.New(
		apperror.CodeInvalidInput,
		"invalid company id",
		http.StatusBadRequest,
	)
	ErrInvalidActorID = apperror.New(
		apperror.CodeInvalidInput,
		"invalid actor id",
		http.StatusBadRequest,
	)
	ErrInvalidWorkerID = apperror.New(
		apperror.CodeInvalidInput,
		"invalid worker id",
		http.StatusBadRequest,
	)
	ErrInvalidDateFormat = apperror.New(
		apperror.CodeInvalidInput,
		"invalid date format, expected YYYY-MM-DD",
		http.StatusBadRequest,
	)
	ErrInvalidDateRange = apperror.New(
		apperror.CodeInvalidInput,
		"period_start must be before or equal period_end",
		http.StatusBadRequest,
	)
	ErrInvalidMoneyValue = apperror.New(
		apperror.CodeInvalidInput,
		"monetary amounts must be valid non-negative decimals",
		http.StatusBadRequest,
	)
	ErrInvalidItemType = apperror.New(
		apperror.CodeInvalidInput,
		"invalid payroll item type",
		http.StatusBadRequest,
	)
	ErrRunNotFound = apperror.New(
		apperror.CodeNotFound,
		"payroll run not found",
		http.StatusNotFound,
	)
	ErrItemNotFound = apperror.New(
		apperror.CodeNotFound,
		"payroll item not found",
		http.StatusNotFound,
	)
	ErrRunNotDraft = apperror.New(
		apperror.CodeInvalidState,
		"payroll run can only be modified while status is draft",
		http.StatusBadRequest,
	)
	ErrRunHasNoItems = apperror.New(
		apperror.CodeInvalidState,
		"payroll run has no items to submit",
		http.StatusBadRequest,
	)
	ErrRejectReasonRequired = apperror.New(
		apperror.CodeInvalidInput,
		"rejection reason is required",
		http.StatusBadRequest,
	)
	ErrInvalidTransition = apperror.New(
		apperror.CodeInvalidState,
		"invalid payroll run status transition",
		http.StatusBadRequest,
	)
	ErrRunAlreadyProcessing = apperror.New(
		apperror.CodeConflict,
		"payroll run is already being processed",
		http.StatusConflict,
	)
	ErrRunNotProcessing = apperror.New(
		apperror.CodeInvalidState,
		"payroll run is not in processing status",
		http.StatusBadRequest,
	)
	ErrNoEligibleWork = apperror.New(
		apperror.CodeInvalidState,
		"no completed unpaid work found in the period",
		http.StatusUnprocessableEntity,
	)
	ErrReferenceConflict = apperror.New(
		apperror.CodeConflict,
		"payroll run reference already exists",
		http.StatusConflict,
	)
)
