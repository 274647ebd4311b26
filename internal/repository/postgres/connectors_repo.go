package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/baharkarakas/qrcharge-backend/internal/models"
)

const connectorCols = `id, token, station_id, merchant_id, price_per_unit, capacity, available_capacity, active, updated_at`

func scanConnector(row interface{ Scan(...any) error }) (models.Connector, error) {
	var c models.Connector
	err := row.Scan(&c.ID, &c.Token, &c.StationID, &c.MerchantID, &c.PricePerUnit,
		&c.Capacity, &c.AvailableCapacity, &c.Active, &c.UpdatedAt)
	return c, mapErr(err)
}

func (s *Store) GetConnector(ctx context.Context, id string) (models.Connector, error) {
	return scanConnector(s.q.QueryRow(ctx, `SELECT `+connectorCols+` FROM connectors WHERE id=$1`, id))
}

func (s *Store) GetConnectorByToken(ctx context.Context, token string) (models.Connector, error) {
	return scanConnector(s.q.QueryRow(ctx, `SELECT `+connectorCols+` FROM connectors WHERE token=$1`, token))
}

func (s *Store) ReserveConnector(ctx context.Context, id string) (bool, error) {
	tag, err := s.q.Exec(ctx,
		`UPDATE connectors
		    SET available_capacity = available_capacity - 1, updated_at=now()
		  WHERE id=$1 AND active AND available_capacity > 0`,
		id,
	)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleaseConnector(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx,
		`UPDATE connectors
		    SET available_capacity = LEAST(available_capacity + 1, capacity), updated_at=now()
		  WHERE id=$1`,
		id,
	)
	return mapErr(err)
}

const chargingCols = `id, session_id, connector_id, user_id, status, energy_delivered, started_at, ended_at`

func scanCharging(row interface{ Scan(...any) error }) (models.ChargingRecord, error) {
	var r models.ChargingRecord
	err := row.Scan(&r.ID, &r.SessionID, &r.ConnectorID, &r.UserID, &r.Status,
		&r.EnergyDelivered, &r.StartedAt, &r.EndedAt)
	return r, mapErr(err)
}

func (s *Store) CreateChargingRecord(ctx context.Context, r models.ChargingRecord) (models.ChargingRecord, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return scanCharging(s.q.QueryRow(ctx,
		`INSERT INTO charging_records(id, session_id, connector_id, user_id, status, energy_delivered, started_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7)
		 RETURNING `+chargingCols,
		r.ID, r.SessionID, r.ConnectorID, r.UserID, r.Status, r.EnergyDelivered, r.StartedAt))
}

func (s *Store) GetChargingRecordBySession(ctx context.Context, sessionID string) (models.ChargingRecord, error) {
	return scanCharging(s.q.QueryRow(ctx,
		`SELECT `+chargingCols+` FROM charging_records WHERE session_id=$1`, sessionID))
}

func (s *Store) UpdateChargingRecord(ctx context.Context, r models.ChargingRecord) error {
	_, err := s.q.Exec(ctx,
		`UPDATE charging_records SET status=$2, energy_delivered=$3, ended_at=$4 WHERE id=$1`,
		r.ID, r.Status, r.EnergyDelivered, r.EndedAt,
	)
	return mapErr(err)
}
