package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// StateOnline is the vehicle state reported once the car is reachable.
const StateOnline = "online"

// Vehicle describes one entry of an account's vehicle list.
type Vehicle struct {
	ID          string
	VIN         string
	DisplayName string
	State       string
}

// The server sends numeric vehicle ids; accept strings too and normalize
// everything to a string.
type vehicleID string

func (v *vehicleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = vehicleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = vehicleID(n.String())
	return nil
}

// Vehicles returns the vehicles enrolled in the account, in server order.
func (c *Client) Vehicles(ctx context.Context) ([]Vehicle, error) {
	body, err := c.get(ctx, "api/1/vehicles")
	if err != nil {
		return nil, err
	}
	var listing struct {
		Count    int `json:"count"`
		Response []struct {
			ID          vehicleID `json:"id"`
			VIN         string    `json:"vin"`
			DisplayName string    `json:"display_name"`
			State       string    `json:"state"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("invalid vehicle list response: %w", err)
	}
	vehicles := make([]Vehicle, 0, len(listing.Response))
	for _, entry := range listing.Response {
		vehicles = append(vehicles, Vehicle{
			ID:          string(entry.ID),
			VIN:         entry.VIN,
			DisplayName: entry.DisplayName,
			State:       entry.State,
		})
	}
	return vehicles, nil
}

// WakeUp asks the server to bring a vehicle online. The vehicle is typically
// not reachable when WakeUp returns; poll [Client.VehicleData] until its
// state is [StateOnline].
func (c *Client) WakeUp(ctx context.Context, vehicleID string) error {
	_, err := c.post(ctx, fmt.Sprintf("api/1/vehicles/%s/wake_up", vehicleID), nil)
	return err
}

// VehicleData holds the subset of the vehicle_data response used here.
type VehicleData struct {
	State string `json:"state"`
}

// VehicleData fetches the vehicle's current state.
func (c *Client) VehicleData(ctx context.Context, vehicleID string) (*VehicleData, error) {
	body, err := c.get(ctx, fmt.Sprintf("api/1/vehicles/%s/vehicle_data", vehicleID))
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Response *VehicleData `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("invalid vehicle data response: %w", err)
	}
	if envelope.Response == nil {
		return nil, fmt.Errorf("vehicle data response missing body")
	}
	return envelope.Response, nil
}

// The navigation endpoint mirrors Android's share-to-vehicle intent, so the
// destination travels as free-form text under the intent's extra key.
type shareRequest struct {
	Type        string            `json:"type"`
	Value       map[string]string `json:"value"`
	Locale      string            `json:"locale"`
	TimestampMS string            `json:"timestamp_ms"`
}

// Navigate sends destination to the vehicle's navigation system and returns
// the raw command response body for the caller to interpret.
func (c *Client) Navigate(ctx context.Context, vehicleID, destination string) ([]byte, error) {
	request := shareRequest{
		Type:        "share_ext_content_raw",
		Value:       map[string]string{"android.intent.extra.TEXT": destination},
		Locale:      "en-US",
		TimestampMS: fmt.Sprintf("%d", time.Now().UnixMilli()),
	}
	return c.post(ctx, fmt.Sprintf("api/1/vehicles/%s/command/navigation_request", vehicleID), &request)
}

type coordinateRequest struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Order     int     `json:"order"`
}

// NavigateToCoordinates sends a GPS destination instead of an address.
func (c *Client) NavigateToCoordinates(ctx context.Context, vehicleID string, latitude, longitude float64) ([]byte, error) {
	request := coordinateRequest{Latitude: latitude, Longitude: longitude}
	return c.post(ctx, fmt.Sprintf("api/1/vehicles/%s/command/navigation_gps_request", vehicleID), &request)
}
