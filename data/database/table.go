package database

// Platform collections the gateway reads for authorization. They are owned
// and written by the domain services.
const (
	CollectionCookingSessions = "cooking_sessions"
	CollectionCollections     = "recipe_collections"
	CollectionShoppingLists   = "shopping_lists"
	CollectionMealPlans       = "meal_plans"
	CollectionChallenges      = "challenges"
)
