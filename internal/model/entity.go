package model

import (
	"time"
)

// Customer is a purchasing organization keyed by its tax id.
type Customer struct {
	ID            int64   `json:"id"`
	TaxID         string  `json:"tax_id"`
	Name          *string `json:"name,omitempty"`
	LegalAddress  *string `json:"legal_address,omitempty"`
	ActualAddress *string `json:"actual_address,omitempty"`
	Contact       *string `json:"contact,omitempty"`
	ContactPhone  *string `json:"contact_phone,omitempty"`
	ContactEmail  *string `json:"contact_email,omitempty"`
}

// TradingPlatform is an electronic trading platform keyed by name.
type TradingPlatform struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	URL  *string `json:"url,omitempty"`
}

// Contract is one procurement notice or registry entry.
type Contract struct {
	ID                   int64             `json:"id"`
	Family               DocumentFamily    `json:"family"`
	Number               *string           `json:"number,omitempty"`
	NoticeNumber         *string           `json:"notice_number,omitempty"`
	Subject              *string           `json:"subject,omitempty"`
	Price                *float64          `json:"price,omitempty"`
	Currency             *string           `json:"currency,omitempty"`
	PublishedAt          *time.Time        `json:"published_at,omitempty"`
	EndsAt               *time.Time        `json:"ends_at,omitempty"`
	Status               *string           `json:"status,omitempty"`
	Attributes           map[string]string `json:"attributes,omitempty"`
	SourceFile           string            `json:"source_file"`
	CustomerID           int64             `json:"customer_id"`
	TradingPlatformID    int64             `json:"trading_platform_id"`
	RegionID             *int64            `json:"region_id,omitempty"`
	ClassificationCodeID int64             `json:"classification_code_id"`
}

// DocumentLink points at an attachment of a contract.
type DocumentLink struct {
	ContractID int64  `json:"contract_id"`
	FileName   string `json:"file_name"`
	URL        string `json:"url"`
}

// Region is a reference row keyed by its two-digit code.
type Region struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ClassificationCode is a reference row of the product classifier.
type ClassificationCode struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// LedgerStats summarizes ingestion progress.
type LedgerStats struct {
	ProcessedFiles    int64      `json:"processed_files"`
	ProcessedDates    int64      `json:"processed_dates"`
	LastProcessedDate *time.Time `json:"last_processed_date,omitempty"`
	Customers         int64      `json:"customers"`
	TradingPlatforms  int64      `json:"trading_platforms"`
	Contracts         int64      `json:"contracts"`
	DocumentLinks     int64      `json:"document_links"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// CustomerPatch lists the customer attributes an update changes. Nil fields
// are left as stored.
type CustomerPatch struct {
	LegalAddress  *string
	ActualAddress *string
	Contact       *string
	ContactPhone  *string
	ContactEmail  *string
}

// Empty reports whether the patch changes nothing.
func (p CustomerPatch) Empty() bool {
	return p.LegalAddress == nil && p.ActualAddress == nil && p.Contact == nil &&
		p.ContactPhone == nil && p.ContactEmail == nil
}

// SweepSummary is recorded with a processed date.
type SweepSummary struct {
	Tuples       int `json:"tuples"`
	FailedTuples int `json:"failed_tuples"`
	Archives     int `json:"archives"`
	Files        int `json:"files"`
}
