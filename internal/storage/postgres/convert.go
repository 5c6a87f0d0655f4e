package postgres

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/omnilypro/omnily/internal/audit"
	"github.com/omnilypro/omnily/internal/domain"
	"github.com/omnilypro/omnily/internal/permissions"
	"github.com/omnilypro/omnily/internal/wallet"
)

// --- Organization ---

func toOrgDomain(m *OrgModel) *domain.Organization {
	return &domain.Organization{
		ID:        m.ID,
		Name:      m.Name,
		Slug:      m.Slug,
		CreatedAt: m.CreatedAt,
	}
}

// --- Customer ---

func toCustomerDomain(m *CustomerModel) *domain.Customer {
	return &domain.Customer{
		ID:         m.ID,
		OrgID:      m.OrgID,
		ExternalID: m.ExternalID,
		Name:       m.Name,
		Email:      m.Email,
		CreatedAt:  m.CreatedAt,
	}
}

// --- Staff ---

func toStaffModel(member *domain.StaffMember) StaffModel {
	return StaffModel{
		ID:        member.ID,
		OrgID:     member.OrgID,
		Email:     member.Email,
		Name:      member.Name,
		Role:      string(member.Role),
		Active:    member.Active,
		CreatedAt: member.CreatedAt,
		UpdatedAt: member.UpdatedAt,
	}
}

func toStaffDomain(m *StaffModel) *domain.StaffMember {
	return &domain.StaffMember{
		ID:        m.ID,
		OrgID:     m.OrgID,
		Email:     m.Email,
		Name:      m.Name,
		Role:      permissions.Role(m.Role),
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// --- Wallet ---

func toWalletDomain(m *WalletModel) *wallet.Wallet {
	return &wallet.Wallet{
		ID:         m.ID,
		OrgID:      m.OrgID,
		CustomerID: m.CustomerID,
		Balance:    m.Balance,
		Status:     wallet.Status(m.Status),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toTransactionModel(t *wallet.Transaction) WalletTransactionModel {
	return WalletTransactionModel{
		ID:            t.ID,
		OrgID:         t.OrgID,
		WalletID:      t.WalletID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Description:   t.Description,
		ReferenceID:   t.ReferenceID,
		ReferenceType: t.ReferenceType,
		PerformedBy:   t.PerformedBy,
		CreatedAt:     t.CreatedAt,
	}
}

func toTransactionDomain(m *WalletTransactionModel) *wallet.Transaction {
	return &wallet.Transaction{
		ID:            m.ID,
		OrgID:         m.OrgID,
		WalletID:      m.WalletID,
		Type:          wallet.Type(m.Type),
		Amount:        m.Amount,
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
		Description:   m.Description,
		ReferenceID:   m.ReferenceID,
		ReferenceType: m.ReferenceType,
		PerformedBy:   m.PerformedBy,
		CreatedAt:     m.CreatedAt,
	}
}

// --- Audit ---

func toAuditModel(orgID uuid.UUID, event audit.Event) AuditEventModel {
	details, _ := json.Marshal(event.Details)
	if details == nil {
		details = []byte("{}")
	}
	return AuditEventModel{
		ID:            uuid.New(),
		OrgID:         orgID,
		CorrelationID: event.CorrelationID,
		StaffID:       event.StaffID,
		Action:        event.Action,
		TargetID:      event.TargetID,
		Details:       JSONB(details),
		Result:        event.Result,
		Error:         event.Error,
		CreatedAt:     event.Timestamp,
	}
}

func toAuditDomain(m *AuditEventModel) audit.Event {
	var details map[string]any
	_ = json.Unmarshal([]byte(m.Details), &details)
	return audit.Event{
		Timestamp:     m.CreatedAt,
		CorrelationID: m.CorrelationID,
		StaffID:       m.StaffID,
		Action:        m.Action,
		TargetID:      m.TargetID,
		Details:       details,
		Result:        m.Result,
		Error:         m.Error,
	}
}
