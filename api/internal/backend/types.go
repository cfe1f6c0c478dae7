package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ID accepts both string and numeric identifiers from the backend.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type Role string

const (
	RoleUser  Role = "user"
	RoleCHW   Role = "chw"
	RoleAdmin Role = "admin"
)

type User struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Role     Role   `json:"role"`
	Sector   string `json:"sector,omitempty"`
	Approved bool   `json:"approved"`
}

type ProfileUpdate struct {
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Sector string `json:"sector,omitempty"`
}

type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type DisposalStatus string

const (
	DisposalPendingReview   DisposalStatus = "pending_review"
	DisposalPickupRequested DisposalStatus = "pickup_requested"
	DisposalCompleted       DisposalStatus = "completed"
	DisposalCancelled       DisposalStatus = "cancelled"
)

type Disposal struct {
	ID                ID             `json:"id"`
	UserID            ID             `json:"userId,omitempty"`
	GenericName       string         `json:"genericName"`
	BrandName         string         `json:"brandName,omitempty"`
	DosageForm        string         `json:"dosageForm,omitempty"`
	Manufacturer      string         `json:"manufacturer,omitempty"`
	RiskLevel         string         `json:"riskLevel"`
	PredictedCategory string         `json:"predictedCategory"`
	Confidence        *float64       `json:"confidence"`
	DisposalGuidance  string         `json:"disposalGuidance"`
	HandlingMethod    string         `json:"handlingMethod,omitempty"`
	DisposalRemarks   string         `json:"disposalRemarks,omitempty"`
	InputChannel      string         `json:"inputChannel,omitempty"`
	Reason            string         `json:"reason"`
	Status            DisposalStatus `json:"status"`
	PickupRequestID   ID             `json:"pickupRequestId,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

func (d *Disposal) UnmarshalJSON(b []byte) error {
	type alias Disposal
	aux := struct {
		*alias
		MongoID ID `json:"_id"`
	}{alias: (*alias)(d)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = aux.MongoID
	}
	return nil
}

// DisposalUpdate is a partial update; empty fields are not sent.
type DisposalUpdate struct {
	Status          DisposalStatus `json:"status,omitempty"`
	PickupRequestID ID             `json:"pickupRequestId,omitempty"`
	Reason          string         `json:"reason,omitempty"`
}

type PickupStatus string

const (
	PickupPending    PickupStatus = "pending"
	PickupAccepted   PickupStatus = "accepted"
	PickupInProgress PickupStatus = "in_progress"
	PickupCompleted  PickupStatus = "completed"
	PickupCancelled  PickupStatus = "cancelled"
)

func (s PickupStatus) Terminal() bool {
	return s == PickupCompleted || s == PickupCancelled
}

// ParsePickupStatus accepts the status names used in chat commands and callbacks.
func ParsePickupStatus(s string) (PickupStatus, bool) {
	switch PickupStatus(strings.ToLower(strings.TrimSpace(s))) {
	case PickupPending:
		return PickupPending, true
	case PickupAccepted:
		return PickupAccepted, true
	case PickupInProgress, "started", "start":
		return PickupInProgress, true
	case PickupCompleted, "complete", "done":
		return PickupCompleted, true
	case PickupCancelled, "cancel", "canceled":
		return PickupCancelled, true
	}
	return "", false
}

type Pickup struct {
	ID            ID           `json:"id"`
	DisposalID    ID           `json:"disposalId,omitempty"`
	UserID        ID           `json:"userId,omitempty"`
	CHWID         ID           `json:"chwId,omitempty"`
	CHWName       string       `json:"chwName,omitempty"`
	MedicineName  string       `json:"medicineName"`
	RiskLevel     string       `json:"riskLevel,omitempty"`
	Reason        string       `json:"reason"`
	Location      string       `json:"pickupLocation"`
	PreferredTime string       `json:"preferredTime"`
	Status        PickupStatus `json:"status"`
	Notes         string       `json:"notes,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

func (p *Pickup) UnmarshalJSON(b []byte) error {
	type alias Pickup
	aux := struct {
		*alias
		MongoID ID `json:"_id"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = aux.MongoID
	}
	return nil
}

// PickupRequest is the create-pickup body.
type PickupRequest struct {
	DisposalID    ID     `json:"disposalId,omitempty"`
	CHWID         ID     `json:"chwId"`
	MedicineName  string `json:"medicineName"`
	RiskLevel     string `json:"riskLevel,omitempty"`
	Reason        string `json:"reason"`
	Location      string `json:"pickupLocation"`
	PreferredTime string `json:"preferredTime"`
	Consent       bool   `json:"consent"`
}

type PickupUpdate struct {
	Location      string `json:"pickupLocation,omitempty"`
	PreferredTime string `json:"preferredTime,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type CHW struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Sector    string `json:"sector"`
	Available *bool  `json:"available,omitempty"`
}

func (c *CHW) UnmarshalJSON(b []byte) error {
	type alias CHW
	aux := struct {
		*alias
		MongoID ID `json:"_id"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = aux.MongoID
	}
	return nil
}

type DashboardStats struct {
	TotalUsers       int            `json:"totalUsers"`
	TotalCHWs        int            `json:"totalChws"`
	TotalDisposals   int            `json:"totalDisposals"`
	PendingReviews   int            `json:"pendingReviews"`
	PickupRequests   int            `json:"pickupRequests"`
	CompletedPickups int            `json:"completedPickups"`
	ByRiskLevel      map[string]int `json:"byRiskLevel,omitempty"`
	ByCategory       map[string]int `json:"byCategory,omitempty"`
}

// Dashboard is the admin view. Each half carries its own error so one failing
// call does not hide the other.
type Dashboard struct {
	Stats        *DashboardStats
	StatsErr     error
	PendingUsers []User
	PendingErr   error
}

// Itoa is a small helper for building IDs from numeric keys in tests and callbacks.
func Itoa(n int64) ID { return ID(strconv.FormatInt(n, 10)) }
