package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"github.com/golang/glog"
	"google.golang.org/api/option"
)

// ErrFirebaseDisabled is returned when the server runs without credentials.
var ErrFirebaseDisabled = errors.New("firebase is not configured")

var (
	messagingClient *messaging.Client
	authClient      *auth.Client
	once            sync.Once
	initError       error
)

func InitFirebase(credentialsPath string) error {
	once.Do(func() {
		if credentialsPath == "" {
			initError = ErrFirebaseDisabled
			glog.Warningf("[FCM] FIREBASE_CREDENTIALS_PATH not set, push and google login disabled")
			return
		}
		ctx := context.Background()

		glog.Infof("[FCM] Initializing Firebase with credentials: %s", credentialsPath)

		opt := option.WithCredentialsFile(credentialsPath)
		app, err := firebase.NewApp(ctx, nil, opt)
		if err != nil {
			initError = err
			glog.Errorf("[FCM] Failed to init Firebase app: %v", err)
			return
		}

		messagingClient, err = app.Messaging(ctx)
		if err != nil {
			initError = err
			glog.Errorf("[FCM] Failed to get messaging client: %v", err)
			return
		}

		authClient, err = app.Auth(ctx)
		if err != nil {
			initError = err
			glog.Errorf("[FCM] Failed to get auth client: %v", err)
			return
		}

		glog.Infof("[FCM] Firebase messaging and auth clients initialized")
	})

	return initError
}

func getMessagingClient() (*messaging.Client, error) {
	if messagingClient == nil {
		if initError == nil {
			return nil, ErrFirebaseDisabled
		}
		return nil, initError
	}
	return messagingClient, nil
}

// GoogleIdentity is what the server keeps from a verified ID token.
type GoogleIdentity struct {
	UID           string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// IdentityVerifier turns an ID token into an identity. VerifyIDToken is the
// production implementation.
type IdentityVerifier func(ctx context.Context, idToken string) (*GoogleIdentity, error)

// VerifyIDToken checks a Firebase ID token and returns the signed-in identity.
func VerifyIDToken(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	if authClient == nil {
		return nil, ErrFirebaseDisabled
	}
	token, err := authClient.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	id := &GoogleIdentity{UID: token.UID}
	if v, ok := token.Claims["email"].(string); ok {
		id.Email = v
	}
	if v, ok := token.Claims["email_verified"].(bool); ok {
		id.EmailVerified = v
	}
	if v, ok := token.Claims["name"].(string); ok {
		id.Name = v
	}
	if v, ok := token.Claims["picture"].(string); ok {
		id.Picture = v
	}
	return id, nil
}

func SendMultipleNotifications(
	db *sql.DB,
	tokens []string,
	title, body string,
	data map[string]string,
) (int, int, error) {

	client, err := getMessagingClient()
	if err != nil {
		return 0, 0, err
	}

	glog.Infof("[FCM] Sending multicast | tokens=%d title=%q", len(tokens), title)

	message := &messaging.MulticastMessage{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data:   data,
		Tokens: tokens,
	}

	response, err := client.SendEachForMulticast(context.Background(), message)
	if err != nil {
		glog.Errorf("[FCM] Multicast send failed entirely: %v", err)
		return 0, 0, err
	}

	glog.Infof("[FCM] Multicast result | success=%d failure=%d",
		response.SuccessCount, response.FailureCount)

	for i, resp := range response.Responses {
		if resp.Success {
			continue
		}
		token := tokens[i]
		glog.Warningf("[FCM] token=%s... error=%v", token[:min(10, len(token))], resp.Error)

		if messaging.IsUnregistered(resp.Error) {
			if _, err := db.Exec(`DELETE FROM fcm_tokens WHERE token = $1`, token); err != nil {
				glog.Errorf("[FCM] Failed to delete dead token: %v", err)
			}
		}
	}

	return response.SuccessCount, response.FailureCount, nil
}

// UserTokens lists the device tokens registered by a user.
func UserTokens(db *sql.DB, userID int) ([]string, error) {
	rows, err := db.Query(`
		SELECT token FROM fcm_tokens
		WHERE user_id = $1 AND token != ''`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// SendNotificationToUser pushes to every device of userID. Having no devices is
// not an error.
func SendNotificationToUser(db *sql.DB, userID int, title, body string, data map[string]string) error {
	if _, err := getMessagingClient(); err != nil {
		return err
	}
	tokens, err := UserTokens(db, userID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		glog.V(2).Infof("[FCM] user %d has no device tokens", userID)
		return nil
	}
	_, _, err = SendMultipleNotifications(db, tokens, title, body, data)
	return err
}
