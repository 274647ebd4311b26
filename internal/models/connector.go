package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Connector struct {
	ID                string          `json:"id"`
	Token             string          `json:"token"`
	StationID         string          `json:"station_id"`
	MerchantID        string          `json:"merchant_id"`
	PricePerUnit      decimal.Decimal `json:"price_per_unit"`
	Capacity          int             `json:"capacity"`
	AvailableCapacity int             `json:"available_capacity"`
	Active            bool            `json:"active"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type ChargingStatus string

const (
	ChargingActive    ChargingStatus = "active"
	ChargingCompleted ChargingStatus = "completed"
)

type ChargingRecord struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"session_id"`
	ConnectorID     string          `json:"connector_id"`
	UserID          string          `json:"user_id"`
	Status          ChargingStatus  `json:"status"`
	EnergyDelivered decimal.Decimal `json:"energy_delivered"`
	StartedAt       time.Time       `json:"started_at"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
}
