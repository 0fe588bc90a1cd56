// Package authz answers "may this principal read this topic" from the
// platform's MongoDB collections.
package authz

import (
	"context"

	"PPKitchen/data/database"
	"PPKitchen/service/topic"
	"PPKitchen/tools/errs"
	"PPKitchen/tools/security"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ResourceSpec says where a resource type lives and which fields grant read
// access.
type ResourceSpec struct {
	Collection   string
	OwnerField   string
	MemberFields []string
	// PublicField, when set, names a boolean that opens the resource to everyone.
	PublicField string
}

// DefaultSpecs covers the resource types clients subscribe to. "user" topics
// need no lookup.
var DefaultSpecs = map[string]ResourceSpec{
	topic.Session: {
		Collection:   database.CollectionCookingSessions,
		OwnerField:   "hostId",
		MemberFields: []string{"participantIds"},
	},
	topic.Collection: {
		Collection:   database.CollectionCollections,
		OwnerField:   "ownerId",
		MemberFields: []string{"collaboratorIds"},
		PublicField:  "isPublic",
	},
	topic.ShoppingList: {
		Collection:   database.CollectionShoppingLists,
		OwnerField:   "ownerId",
		MemberFields: []string{"sharedWith"},
	},
	topic.MealPlan: {
		Collection:   database.CollectionMealPlans,
		OwnerField:   "userId",
		MemberFields: []string{"sharedWith"},
	},
	topic.Challenge: {
		Collection:   database.CollectionChallenges,
		OwnerField:   "createdBy",
		MemberFields: []string{"participantIds"},
		PublicField:  "isPublic",
	},
}

// MongoAuthorizer checks ownership or membership with a single indexed count.
type MongoAuthorizer struct {
	db    *mongo.Database
	specs map[string]ResourceSpec
}

func NewMongoAuthorizer(db *mongo.Database, specs map[string]ResourceSpec) *MongoAuthorizer {
	if specs == nil {
		specs = DefaultSpecs
	}
	return &MongoAuthorizer{db: db, specs: specs}
}

func (a *MongoAuthorizer) CanRead(ctx context.Context, p security.Principal, t topic.Topic) (bool, error) {
	if allowed, decided := decideWithoutLookup(p, t); decided {
		return allowed, nil
	}
	spec, ok := a.specs[t.Resource]
	if !ok {
		return false, nil
	}
	n, err := a.db.Collection(spec.Collection).CountDocuments(ctx,
		readFilter(spec, t.ID, p.UserID), options.Count().SetLimit(1))
	if err != nil {
		return false, errs.WrapMsg(err, "authz lookup", "topic", t.String(), "userId", p.UserID)
	}
	return n > 0, nil
}

// decideWithoutLookup settles the cases that need no database read.
func decideWithoutLookup(p security.Principal, t topic.Topic) (allowed, decided bool) {
	switch {
	case p.UserID == "":
		return false, true
	case p.IsAdmin():
		return true, true
	case t.Resource == topic.User:
		return t.ID == p.UserID, true
	}
	return false, false
}

// readFilter matches the resource by id when userID owns it, is a member of
// it, or it is public. Ids that look like ObjectIDs match either form.
func readFilter(spec ResourceSpec, id, userID string) bson.M {
	var idMatch any = id
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		idMatch = bson.M{"$in": bson.A{oid, id}}
	}
	or := bson.A{bson.M{spec.OwnerField: userID}}
	for _, f := range spec.MemberFields {
		or = append(or, bson.M{f: userID})
	}
	if spec.PublicField != "" {
		or = append(or, bson.M{spec.PublicField: true})
	}
	return bson.M{"_id": idMatch, "$or": or}
}
