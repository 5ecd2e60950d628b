// Package broadcast delivers one payload to a computed audience with
// independent per-recipient outcomes. A failed send is logged and counted,
// never aborting the remaining deliveries.
package broadcast

import (
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Focusniks/ipmkn-bot/internal/models"
	"github.com/Focusniks/ipmkn-bot/pkg/logger"
)

// Sender is the outbound side of the transport, one call per recipient.
type Sender interface {
	SendMessage(chatID int64, text string, replyMarkup interface{}) error
	SendPhoto(chatID int64, fileID, caption string, replyMarkup interface{}) error
	SendDocument(chatID int64, fileID, caption string, replyMarkup interface{}) error
}

// Directory resolves audience selectors to user records.
type Directory interface {
	AllStudents() ([]models.User, error)
	StudentsByGroup(groupName string) ([]models.User, error)
	UsersByRole(role models.Role) ([]models.User, error)
	UserByID(id int64) (*models.User, error)
}

type audienceKind int

const (
	audienceAllStudents audienceKind = iota
	audienceGroup
	audienceRole
	audienceUser
)

// Audience selects who receives the payload.
type Audience struct {
	kind   audienceKind
	group  string
	role   models.Role
	userID int64
}

func AllStudents() Audience              { return Audience{kind: audienceAllStudents} }
func Group(name string) Audience         { return Audience{kind: audienceGroup, group: name} }
func Role(role models.Role) Audience     { return Audience{kind: audienceRole, role: role} }
func SingleUser(userID int64) Audience   { return Audience{kind: audienceUser, userID: userID} }

// Payload is the message to deliver: plain text, or a photo/document
// file id with an optional caption. Markup, when set, is rendered for
// every recipient (claim and approve/reject affordances).
type Payload struct {
	Text       string
	PhotoID    string
	DocumentID string
	Caption    string
	Markup     interface{}
}

// Result is the aggregate outcome reported back to the initiator.
type Result struct {
	Attempted int
	Succeeded int
}

const sendConcurrency = 8

type Broadcaster struct {
	sender Sender
	dir    Directory
}

func New(sender Sender, dir Directory) *Broadcaster {
	return &Broadcaster{sender: sender, dir: dir}
}

// Send resolves the audience and attempts delivery to each recipient.
// Recipients without a bound chat identity are not counted. Deliveries run
// concurrently; the returned error is the combination of individual send
// failures and never reflects a total abort.
func (b *Broadcaster) Send(audience Audience, payload Payload) (Result, error) {
	recipients, err := b.resolve(audience)
	if err != nil {
		return Result{}, err
	}

	var (
		succeeded atomic.Int64
		mu        sync.Mutex
		sendErrs  error
	)

	g := new(errgroup.Group)
	g.SetLimit(sendConcurrency)

	for _, chatID := range recipients {
		chatID := chatID
		g.Go(func() error {
			if err := b.deliver(chatID, payload); err != nil {
				zap.L().Error("broadcast delivery failed",
					zap.Int64(logger.FieldChatID, chatID),
					zap.Error(err))
				mu.Lock()
				sendErrs = multierr.Append(sendErrs, err)
				mu.Unlock()
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return Result{
		Attempted: len(recipients),
		Succeeded: int(succeeded.Load()),
	}, sendErrs
}

func (b *Broadcaster) deliver(chatID int64, p Payload) error {
	switch {
	case p.PhotoID != "":
		return b.sender.SendPhoto(chatID, p.PhotoID, p.Caption, p.Markup)
	case p.DocumentID != "":
		return b.sender.SendDocument(chatID, p.DocumentID, p.Caption, p.Markup)
	default:
		return b.sender.SendMessage(chatID, p.Text, p.Markup)
	}
}

func (b *Broadcaster) resolve(audience Audience) ([]int64, error) {
	var (
		users []models.User
		err   error
	)

	switch audience.kind {
	case audienceAllStudents:
		users, err = b.dir.AllStudents()
	case audienceGroup:
		users, err = b.dir.StudentsByGroup(audience.group)
	case audienceRole:
		users, err = b.dir.UsersByRole(audience.role)
	case audienceUser:
		var u *models.User
		u, err = b.dir.UserByID(audience.userID)
		if err == nil {
			users = []models.User{*u}
		}
	}
	if err != nil {
		return nil, err
	}

	var recipients []int64
	for _, u := range users {
		if u.TelegramID != 0 {
			recipients = append(recipients, u.TelegramID)
		}
	}
	return recipients, nil
}
