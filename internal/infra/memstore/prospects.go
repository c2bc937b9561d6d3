package memstore

import (
	"context"
	"sort"
	"strings"

	"github.com/boddenberg/whop-crm-go/internal/domain"
)

func (s *Store) ListProspects(_ context.Context, companyID string, f domain.ProspectFilter) ([]domain.Prospect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(f.Search)
	out := make([]domain.Prospect, 0)
	for _, p := range s.prospects {
		if p.CompanyID != companyID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Priority != "" && p.Priority != f.Priority {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Email), search) &&
			!strings.Contains(strings.ToLower(p.CommunityName), search) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) GetProspect(_ context.Context, companyID, prospectID string) (*domain.Prospect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prospects[prospectID]
	if !ok || p.CompanyID != companyID {
		return nil, &domain.ErrNotFound{Resource: "prospect", ID: prospectID}
	}
	cp := *p
	return &cp, nil
}

func (s *Store) CreateProspect(_ context.Context, in *domain.Prospect) (*domain.Prospect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *in
	p.ID = newID()
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	s.prospects[p.ID] = &p
	cp := p
	return &cp, nil
}

func (s *Store) SaveProspect(_ context.Context, in *domain.Prospect) (*domain.Prospect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prospects[in.ID]
	if !ok || p.CompanyID != in.CompanyID {
		return nil, &domain.ErrNotFound{Resource: "prospect", ID: in.ID}
	}
	*p = *in
	p.Conversations = nil
	p.Reminders = nil
	p.UpdatedAt = s.now()
	cp := *p
	return &cp, nil
}

func (s *Store) DeleteProspect(_ context.Context, companyID, prospectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prospects[prospectID]
	if !ok || p.CompanyID != companyID {
		return &domain.ErrNotFound{Resource: "prospect", ID: prospectID}
	}
	delete(s.prospects, prospectID)
	for id, c := range s.conversations {
		if c.ProspectID == prospectID {
			delete(s.conversations, id)
			delete(s.messages, id)
		}
	}
	for id, r := range s.reminders {
		if r.ProspectID == prospectID {
			delete(s.reminders, id)
		}
	}
	return nil
}

func (s *Store) ListConversations(_ context.Context, companyID string, f domain.ConversationFilter) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Conversation, 0)
	for _, c := range s.conversations {
		if c.CompanyID != companyID {
			continue
		}
		if f.ProspectID != "" && c.ProspectID != f.ProspectID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) GetConversation(_ context.Context, companyID, conversationID string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok || c.CompanyID != companyID {
		return nil, &domain.ErrNotFound{Resource: "conversation", ID: conversationID}
	}
	cp := *c
	return &cp, nil
}

func (s *Store) CreateConversation(_ context.Context, in *domain.Conversation) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *in
	c.ID = newID()
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	s.conversations[c.ID] = &c
	cp := c
	return &cp, nil
}

func (s *Store) SaveConversation(_ context.Context, in *domain.Conversation) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[in.ID]
	if !ok || c.CompanyID != in.CompanyID {
		return nil, &domain.ErrNotFound{Resource: "conversation", ID: in.ID}
	}
	*c = *in
	c.Messages = nil
	c.UpdatedAt = s.now()
	cp := *c
	return &cp, nil
}

func (s *Store) DeleteConversation(_ context.Context, companyID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok || c.CompanyID != companyID {
		return &domain.ErrNotFound{Resource: "conversation", ID: conversationID}
	}
	delete(s.conversations, conversationID)
	delete(s.messages, conversationID)
	return nil
}

func (s *Store) ListMessages(_ context.Context, conversationID string) ([]domain.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.ConversationMessage{}, s.messages[conversationID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

func (s *Store) CreateMessage(_ context.Context, in *domain.ConversationMessage) (*domain.ConversationMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[in.ConversationID]; !ok {
		return nil, &domain.ErrNotFound{Resource: "conversation", ID: in.ConversationID}
	}
	m := *in
	m.ID = newID()
	if m.SentAt.IsZero() {
		m.SentAt = s.now()
	}
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)
	return &m, nil
}

func (s *Store) ListReminders(_ context.Context, companyID string, f domain.ReminderFilter) ([]domain.FollowUpReminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FollowUpReminder, 0)
	for _, r := range s.reminders {
		if r.CompanyID != companyID {
			continue
		}
		if f.ProspectID != "" && r.ProspectID != f.ProspectID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.DueBefore != nil && r.DueAt.After(*f.DueBefore) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (s *Store) GetReminder(_ context.Context, companyID, reminderID string) (*domain.FollowUpReminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reminders[reminderID]
	if !ok || r.CompanyID != companyID {
		return nil, &domain.ErrNotFound{Resource: "reminder", ID: reminderID}
	}
	cp := *r
	return &cp, nil
}

func (s *Store) CreateReminder(_ context.Context, in *domain.FollowUpReminder) (*domain.FollowUpReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *in
	r.ID = newID()
	r.CreatedAt = s.now()
	r.UpdatedAt = r.CreatedAt
	s.reminders[r.ID] = &r
	cp := r
	return &cp, nil
}

func (s *Store) SaveReminder(_ context.Context, in *domain.FollowUpReminder) (*domain.FollowUpReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[in.ID]
	if !ok || r.CompanyID != in.CompanyID {
		return nil, &domain.ErrNotFound{Resource: "reminder", ID: in.ID}
	}
	*r = *in
	r.UpdatedAt = s.now()
	cp := *r
	return &cp, nil
}

func (s *Store) DeleteReminder(_ context.Context, companyID, reminderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[reminderID]
	if !ok || r.CompanyID != companyID {
		return &domain.ErrNotFound{Resource: "reminder", ID: reminderID}
	}
	delete(s.reminders, reminderID)
	return nil
}
