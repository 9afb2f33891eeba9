package models

import "time"

type Activity struct {
	ID        ObjectID  `bson:"_id,omitempty" json:"id"`
	ChatID    ObjectID  `bson:"chat_id" json:"chat_id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Action    EventType `bson:"action" json:"action"`
	NodeIDs   []string  `bson:"node_ids,omitempty" json:"node_ids,omitempty"`
	Data      any       `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func (Activity) CollectionName() string {
	return "chat_activities"
}

func (a Activity) GetObjectID() ObjectID {
	return a.ID
}

func (a Activity) GetUpdates() any {
	a.ID = ""
	return a
}
