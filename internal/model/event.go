package model

import (
	"encoding/json"
	"time"
)

// Status is the classification of a utilization data point.
type Status string

const (
	StatusOK    Status = "OK"
	StatusWarn  Status = "WARN"
	StatusError Status = "ERROR"
)

// Event bus envelope constants shared by publishers and consumers.
const (
	EventSource           = "aws-solutions.quota-monitor"
	UtilizationDetailType = "Service Quotas Utilization Notification"
	PercentageLimitAmount = "100"
)

// UtilizationEvent is the externally visible output of an evaluation. It is
// never mutated after creation.
type UtilizationEvent struct {
	Status       Status
	LimitCode    string
	LimitName    string
	Resource     string
	Service      string
	Region       string
	CurrentUsage string
	LimitAmount  string
	Timestamp    time.Time
}

type checkItemDetail struct {
	LimitCode    string     `json:"Limit Code"`
	LimitName    string     `json:"Limit Name"`
	Resource     string     `json:"Resource"`
	Service      string     `json:"Service"`
	Region       string     `json:"Region"`
	CurrentUsage string     `json:"Current Usage"`
	LimitAmount  string     `json:"Limit Amount"`
	Timestamp    *time.Time `json:"Timestamp,omitempty"`
}

type eventDetail struct {
	Status          Status          `json:"status"`
	CheckItemDetail checkItemDetail `json:"check-item-detail"`
}

// MarshalJSON renders the event in the detail format consumed by the
// notification and report services.
func (e UtilizationEvent) MarshalJSON() ([]byte, error) {
	d := eventDetail{
		Status: e.Status,
		CheckItemDetail: checkItemDetail{
			LimitCode:    e.LimitCode,
			LimitName:    e.LimitName,
			Resource:     e.Resource,
			Service:      e.Service,
			Region:       e.Region,
			CurrentUsage: e.CurrentUsage,
			LimitAmount:  e.LimitAmount,
		},
	}
	if !e.Timestamp.IsZero() {
		ts := e.Timestamp.UTC()
		d.CheckItemDetail.Timestamp = &ts
	}
	return json.Marshal(d)
}

func (e *UtilizationEvent) UnmarshalJSON(data []byte) error {
	var d eventDetail
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	*e = UtilizationEvent{
		Status:       d.Status,
		LimitCode:    d.CheckItemDetail.LimitCode,
		LimitName:    d.CheckItemDetail.LimitName,
		Resource:     d.CheckItemDetail.Resource,
		Service:      d.CheckItemDetail.Service,
		Region:       d.CheckItemDetail.Region,
		CurrentUsage: d.CheckItemDetail.CurrentUsage,
		LimitAmount:  d.CheckItemDetail.LimitAmount,
	}
	if d.CheckItemDetail.Timestamp != nil {
		e.Timestamp = *d.CheckItemDetail.Timestamp
	}
	return nil
}

// Envelope is an event as delivered by the event bus to downstream targets
// (SQS queues, notification handlers).
type Envelope struct {
	ID         string           `json:"id"`
	Account    string           `json:"account"`
	Time       time.Time        `json:"time"`
	Region     string           `json:"region"`
	Source     string           `json:"source"`
	DetailType string           `json:"detail-type"`
	Detail     UtilizationEvent `json:"detail"`
}

// ReportItem is a row of the usage report table.
type ReportItem struct {
	MessageID    string `json:"message_id" dynamodbav:"MessageId"`
	AccountID    string `json:"account_id" dynamodbav:"AccountId"`
	TimeStamp    string `json:"timestamp" dynamodbav:"TimeStamp"`
	Region       string `json:"region" dynamodbav:"Region"`
	Source       string `json:"source" dynamodbav:"Source"`
	Service      string `json:"service" dynamodbav:"Service"`
	Resource     string `json:"resource" dynamodbav:"Resource"`
	LimitCode    string `json:"limit_code" dynamodbav:"LimitCode"`
	LimitName    string `json:"limit_name" dynamodbav:"LimitName"`
	CurrentUsage string `json:"current_usage" dynamodbav:"CurrentUsage"`
	LimitAmount  string `json:"limit_amount" dynamodbav:"LimitAmount"`
	Status       Status `json:"status" dynamodbav:"Status"`
	ExpiryTime   string `json:"expiry_time" dynamodbav:"ExpiryTime"`
}

// QueueMessage is a message received from a queue, with the handle needed
// to delete it.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}
