package core

// DefaultCategories returns the category set seeded at first run.
func DefaultCategories() []Category {
	return []Category{
		{ID: "c1", Name: "Food & Dining", Type: Expense, Color: "#fbbf24", Icon: "Utensils", IsDefault: true},
		{ID: "c2", Name: "Housing", Type: Expense, Color: "#4ecdc4", Icon: "Home", IsDefault: true},
		{ID: "c3", Name: "Transport", Type: Expense, Color: "#45b7d1", Icon: "Car", IsDefault: true},
		{ID: "c4", Name: "Utilities", Type: Expense, Color: "#f7d794", Icon: "Zap", IsDefault: true},
		{ID: "c5", Name: "Shopping", Type: Expense, Color: "#ff9ff3", Icon: "ShoppingBag", IsDefault: true},
		{ID: "c6", Name: "Health", Type: Expense, Color: "#ffcccc", Icon: "HeartPulse", IsDefault: true},
		{ID: "c7", Name: "Education", Type: Expense, Color: "#cd84f1", Icon: "BookOpen", IsDefault: true},
		{ID: "c8", Name: "Entertainment", Type: Expense, Color: "#7efff5", Icon: "Gamepad2", IsDefault: true},
		{ID: "c9", Name: "Other", Type: Expense, Color: "#d1ccc0", Icon: "MoreHorizontal", IsDefault: true},

		{ID: "i1", Name: "Salary", Type: Income, Color: "#2ecc71", Icon: "Wallet", IsDefault: true},
		{ID: "i2", Name: "Bonus", Type: Income, Color: "#27ae60", Icon: "Gift", IsDefault: true},
		{ID: "i3", Name: "Business", Type: Income, Color: "#16a085", Icon: "TrendingUp", IsDefault: true},
		{ID: "i4", Name: "Other", Type: Income, Color: "#95a5a6", Icon: "MoreHorizontal", IsDefault: true},
	}
}
