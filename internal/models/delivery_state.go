package models

import (
	"fmt"
)

// DeliveryState represents where an (alert, channel) pair is in delivery
type DeliveryState string

const (
	// DeliveryPending means no attempt was recorded yet
	DeliveryPending DeliveryState = "pending"
	// DeliverySent is terminal
	DeliverySent DeliveryState = "sent"
	// DeliveryFailed is retried on the next run
	DeliveryFailed DeliveryState = "failed"
)

// DeliveryTransition defines a valid state transition
type DeliveryTransition struct {
	From        DeliveryState
	To          DeliveryState
	Description string
}

// ValidDeliveryTransitions lists every allowed move. Nothing leaves sent.
var ValidDeliveryTransitions = []DeliveryTransition{
	{DeliveryPending, DeliverySent, "First attempt delivered"},
	{DeliveryPending, DeliveryFailed, "First attempt failed"},
	{DeliveryFailed, DeliverySent, "Retry delivered"},
	{DeliveryFailed, DeliveryFailed, "Retry failed again"},
}

// ErrAlreadySent is returned when recording an attempt on a sent channel.
var ErrAlreadySent = fmt.Errorf("channel already marked %s", DeliverySent)

// ValidateDeliveryTransition checks a move against ValidDeliveryTransitions.
func ValidateDeliveryTransition(from, to DeliveryState) error {
	if from == DeliverySent {
		return ErrAlreadySent
	}
	for _, t := range ValidDeliveryTransitions {
		if t.From == from && t.To == to {
			return nil
		}
	}
	return fmt.Errorf("invalid delivery transition from %s to %s", from, to)
}

// IsTerminal returns true for states that must never be retried.
func (s DeliveryState) IsTerminal() bool {
	return s == DeliverySent
}
