package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProbeStatus 钓鱼工具包探测状态
type ProbeStatus string

const (
	StatusUp          ProbeStatus = "UP"          // 页面在线且仍引用追踪文件
	StatusRemoved     ProbeStatus = "REMOVED"     // 页面在线但追踪文件已移除
	StatusDown        ProbeStatus = "DOWN"        // HTTP 状态码非 200
	StatusUnreachable ProbeStatus = "UNREACHABLE" // 连接/超时/DNS 失败
)

// Enrichment sentinels used when registration data is absent.
const (
	RegistrarNotFound = "Not found"
	DateNotFound      = "None found"
)

// LogRecord is the result of one matched log line.
type LogRecord struct {
	Timestamp     string `json:"timestamp"`
	RequestedPath string `json:"requested_path"`
	RefererURL    string `json:"referer_url,omitempty"` // empty: direct navigation
}

// HasReferer reports whether the request carried a referer header.
func (r LogRecord) HasReferer() bool {
	return r.RefererURL != ""
}

// Candidate 待验证的钓鱼工具包页面
type Candidate struct {
	RefererURL string `json:"referer_url"`
	Domain     string `json:"domain"`
	Timestamp  string `json:"timestamp"`
}

// ProbeResult 探测结果
// ContentHash is set iff Status is StatusUp.
type ProbeResult struct {
	Status      ProbeStatus `json:"status"`
	StatusCode  int         `json:"status_code,omitempty"` // 0 when no response was received
	ContentHash string      `json:"content_hash,omitempty"`
	Title       string      `json:"title,omitempty"`
	FaviconHash string      `json:"favicon_hash,omitempty"`
	Attempts    int         `json:"attempts"`
	Err         error       `json:"-"`
}

// IsUp reports whether the kit is live and still references the tracking file.
func (p ProbeResult) IsUp() bool {
	return p.Status == StatusUp
}

// DomainInfo WHOIS 注册信息
type DomainInfo struct {
	Registrar      string `json:"registrar"`
	CreationDate   string `json:"creation_date"`
	ExpirationDate string `json:"expiration_date"`
	LookupOK       bool   `json:"lookup_ok"`
	Err            error  `json:"-"`
}

// NotFoundDomainInfo returns the degraded value used when a lookup fails.
func NotFoundDomainInfo(err error) DomainInfo {
	return DomainInfo{
		Registrar:      RegistrarNotFound,
		CreationDate:   DateNotFound,
		ExpirationDate: DateNotFound,
		Err:            err,
	}
}

// ReportHeader is the fixed column header of the report.
var ReportHeader = []string{
	"PK_URL",
	"Domain",
	"HTTP_sha256",
	"HTTP_status",
	"date",
	"domain registrar",
	"domain creation date",
	"domain expiration date",
}

// ReportRow 报告行
type ReportRow struct {
	RefererURL     string      `json:"referer_url" bson:"referer_url"`
	Domain         string      `json:"domain" bson:"domain"`
	ContentHash    string      `json:"content_hash" bson:"content_hash"`
	Status         ProbeStatus `json:"status" bson:"status"`
	Timestamp      string      `json:"timestamp" bson:"timestamp"`
	Registrar      string      `json:"registrar" bson:"registrar"`
	CreationDate   string      `json:"creation_date" bson:"creation_date"`
	ExpirationDate string      `json:"expiration_date" bson:"expiration_date"`

	// Not part of the delimited report.
	Title       string `json:"title,omitempty" bson:"title,omitempty"`
	FaviconHash string `json:"favicon_hash,omitempty" bson:"favicon_hash,omitempty"`
}

// NewReportRow builds the row for a probed candidate. Enrichment is only
// attached when the kit is UP.
func NewReportRow(c Candidate, probe ProbeResult, info *DomainInfo) ReportRow {
	row := ReportRow{
		RefererURL:  c.RefererURL,
		Domain:      c.Domain,
		Status:      probe.Status,
		Timestamp:   c.Timestamp,
		Title:       probe.Title,
		FaviconHash: probe.FaviconHash,
	}
	if !probe.IsUp() {
		return row
	}
	row.ContentHash = probe.ContentHash
	if info != nil {
		row.Registrar = info.Registrar
		row.CreationDate = info.CreationDate
		row.ExpirationDate = info.ExpirationDate
	}
	return row
}

// Record returns the row in report column order.
func (r ReportRow) Record() []string {
	return []string{
		r.RefererURL,
		r.Domain,
		r.ContentHash,
		string(r.Status),
		r.Timestamp,
		r.Registrar,
		r.CreationDate,
		r.ExpirationDate,
	}
}

// KitDocument is the MongoDB representation of a report row.
type KitDocument struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ScanID    string             `json:"scan_id" bson:"scan_id"`
	Row       ReportRow          `json:"row" bson:",inline"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}
