package domain

import "errors"

// RejectReason はクライアントアクションを拒否した理由コードです。
type RejectReason string

const (
	ReasonAlreadyTraveling     RejectReason = "already_traveling"
	ReasonNotTraveling         RejectReason = "not_traveling"
	ReasonUnknownDestination   RejectReason = "unknown_destination"
	ReasonUnknownCargo         RejectReason = "unknown_cargo"
	ReasonNotAtLocation        RejectReason = "not_at_location"
	ReasonNotOwner             RejectReason = "not_owner"
	ReasonNoTargetVehicle      RejectReason = "no_target_vehicle"
	ReasonInsufficientFuel     RejectReason = "insufficient_fuel"
	ReasonInsufficientCredits  RejectReason = "insufficient_credits"
	ReasonInsufficientCargo    RejectReason = "insufficient_cargo"
	ReasonInsufficientSupply   RejectReason = "insufficient_supply"
	ReasonInsufficientDemand   RejectReason = "insufficient_demand"
	ReasonInsufficientCapacity RejectReason = "insufficient_capacity"
	ReasonInvalidQuantity      RejectReason = "invalid_quantity"
	ReasonInvalidAction        RejectReason = "invalid_action"
)

// RejectedError はアクション拒否を理由コード付きで表すエラーです。
// 共有状態は一切変更されていないことを保証します。
type RejectedError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return "action rejected: " + string(e.Reason)
	}
	return "action rejected: " + string(e.Reason) + ": " + e.Detail
}

// Reject は理由コードのみの拒否エラーを生成します。
func Reject(reason RejectReason) *RejectedError {
	return &RejectedError{Reason: reason}
}

// Rejectf は詳細付きの拒否エラーを生成します。
func Rejectf(reason RejectReason, detail string) *RejectedError {
	return &RejectedError{Reason: reason, Detail: detail}
}

// RejectionOf はエラーが拒否エラーならその内容を返します。
func RejectionOf(err error) (*RejectedError, bool) {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected, true
	}
	return nil, false
}
