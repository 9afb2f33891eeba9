package models

import "time"

type Chat struct {
	ID              ObjectID  `bson:"_id,omitempty" json:"id"`
	OwnerID         string    `bson:"owner_id,omitempty" json:"owner_id"`
	Title           string    `bson:"title,omitempty" json:"title"`
	IsCollaborative bool      `bson:"is_collaborative" json:"is_collaborative"`
	CreatedAt       time.Time `bson:"created_at,omitempty" json:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at,omitempty" json:"updated_at"`
}

func (Chat) CollectionName() string {
	return "chats"
}

func (c Chat) GetObjectID() ObjectID {
	return c.ID
}

func (c Chat) GetUpdates() any {
	// owner and creation time never change
	c.ID = ""
	c.OwnerID = ""
	c.CreatedAt = time.Time{}
	c.UpdatedAt = time.Now()
	return c
}

func (c *Chat) IsOwner(userID string) bool {
	return c.OwnerID != "" && c.OwnerID == userID
}
