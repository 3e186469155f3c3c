// Package rules holds the category rule set: the curated keyword table,
// the smart fallback patterns, income patterns and the unified pattern rules
// (user-authored and learned).
package rules

import (
	"regexp"

	"budgetdash/internal/core"
)

// DefaultGasMinimum is the amount below which a non-return gas station
// purchase is treated as Food & Drink.
const DefaultGasMinimum = 20.0

const (
	CategoryOnceAYear      = "Once A Year"
	CategoryGroceries      = "Groceries"
	CategoryGas            = "Gas"
	CategoryFoodDrink      = "Food & Drink"
	CategoryCoffeeTea      = "Coffee and Tea"
	CategoryParking        = "Parking"
	CategoryTransportation = "Transportation"
	CategoryShopping       = "Shopping"
	CategoryEntertainment  = "Entertainment"
	CategorySubscriptions  = "Subscriptions"
	CategoryUtilities      = "Utilities"
	CategoryHealth         = "Health"
	CategoryTravel         = "Travel"
	CategoryHome           = "Home"
)

// DefaultCategories returns the curated category table. Slice order is the
// keyword-matching priority; Others is always last.
func DefaultCategories() []core.Category {
	return []core.Category{
		{Name: CategoryOnceAYear, Icon: "📅", Keywords: []string{"COSTCO MEMBERSHIP", "AMAZON PRIME ANNUAL", "DMV", "PROPERTY TAX", "CAR REGISTRATION", "INSURANCE ANNUAL"}},
		{Name: CategoryGroceries, Icon: "🛒", Keywords: []string{"KROGER", "SAFEWAY", "WHOLE FOODS", "WHOLEFDS", "TRADER JOE", "ALDI", "PUBLIX", "WEGMANS", "HEB ", "H-E-B", "FOOD LION", "SPROUTS", "COSTCO WHSE", "WINCO", "FRED MEYER", "ALBERTSONS", "GROCERY", "MARKET BASKET"}},
		{Name: CategoryGas, Icon: "⛽", Keywords: []string{"SHELL", "CHEVRON", "EXXON", "MOBIL", "BP#", "BP ", "SUNOCO", "TEXACO", "VALERO", "CIRCLE K", "SPEEDWAY", "MARATHON", "76 ", "QUIKTRIP", "QT ", "WAWA", "SHEETZ", "CASEYS", "COSTCO GAS"}, Patterns: []string{`\bARCO\b`}},
		{Name: CategoryFoodDrink, Icon: "🍔", Keywords: []string{"RESTAURANT", "MCDONALD", "CHIPOTLE", "TACO BELL", "WENDY", "BURGER KING", "SUBWAY", "DOORDASH", "UBER EATS", "UBEREATS", "GRUBHUB", "PIZZA", "DOMINO", "CHICK-FIL-A", "PANERA", "KFC", "POPEYES", "SONIC", "IN-N-OUT", "FIVE GUYS", "SUSHI", "BAR & GRILL"}},
		{Name: CategoryCoffeeTea, Icon: "☕", Keywords: []string{"STARBUCKS", "DUNKIN", "PEET", "DUTCH BROS", "TEAVANA", "COFFEE", "BOBA", "TEA HOUSE", "CARIBOU"}},
		{Name: CategoryParking, Icon: "🅿️", Keywords: []string{"PARKING", "PARKMOBILE", "SPOTHERO", "PAYBYPHONE", "PARK MOBILE", "LAZ PARKING", "GARAGE"}},
		{Name: CategoryTransportation, Icon: "🚗", Keywords: []string{"UBER TRIP", "UBER *TRIP", "LYFT", "METRO", "TRANSIT", "AMTRAK", "CLIPPER", "TOLL", "E-ZPASS", "FASTRAK"}},
		{Name: CategoryShopping, Icon: "🛍️", Keywords: []string{"AMAZON", "AMZN", "TARGET", "WALMART", "BEST BUY", "EBAY", "ETSY", "IKEA", "MACY", "NORDSTROM", "TJ MAXX", "MARSHALLS", "HOME DEPOT", "LOWE"}},
		{Name: CategoryEntertainment, Icon: "🎬", Keywords: []string{"CINEMA", "AMC THEATRE", "REGAL", "TICKETMASTER", "STEAM", "PLAYSTATION", "XBOX", "NINTENDO", "BOWLING", "CONCERT"}},
		{Name: CategorySubscriptions, Icon: "🔁", Keywords: []string{"NETFLIX", "SPOTIFY", "HULU", "DISNEY PLUS", "DISNEY+", "HBO", "APPLE.COM/BILL", "YOUTUBE PREMIUM", "AUDIBLE", "PATREON", "ADOBE"}},
		{Name: CategoryUtilities, Icon: "💡", Keywords: []string{"COMCAST", "XFINITY", "AT&T", "VERIZON", "T-MOBILE", "ELECTRIC", "WATER DEPT", "PG&E", "CON ED", "DUKE ENERGY", "SPECTRUM", "INTERNET"}},
		{Name: CategoryHealth, Icon: "🏥", Keywords: []string{"CVS", "WALGREENS", "RITE AID", "PHARMACY", "DENTAL", "CLINIC", "HOSPITAL", "MEDICAL", "OPTOMETR", "FITNESS", "GYM"}},
		{Name: CategoryTravel, Icon: "✈️", Keywords: []string{"AIRLINES", "AIRLINE", "DELTA AIR", "UNITED AIR", "SOUTHWEST", "MARRIOTT", "HILTON", "HYATT", "AIRBNB", "EXPEDIA", "BOOKING.COM", "HOTEL"}},
		{Name: CategoryHome, Icon: "🏠", Keywords: []string{"MORTGAGE", "HOA", "PEST CONTROL", "CLEANING", "HANDYMAN"}, Patterns: []string{`\bRENT\b`}},
		{Name: core.IncomeCategory, Icon: "💰", IsIncome: true, Keywords: []string{"PAYROLL", "SALARY", "DIRECT DEP"}},
		{Name: core.OthersCategory, Icon: "📦"},
	}
}

// DefaultIncomePatterns are case-insensitive substrings that mark income.
func DefaultIncomePatterns() []string {
	return []string{"PAYROLL", "SALARY", "DIRECT DEP", "DIR DEP", "DEPOSIT", "PAYCHECK", "ACH CREDIT", "EMPLOYER", "WAGES"}
}

// FallbackRule is one entry of the smart fallback table.
type FallbackRule struct {
	Category string
	Keywords []string
	Patterns []*regexp.Regexp
}

// DefaultSmartFallback returns the smart fallback table in priority order.
func DefaultSmartFallback() []FallbackRule {
	return []FallbackRule{
		{
			Category: CategoryFoodDrink,
			Keywords: []string{"GRILL", "KITCHEN", "BISTRO", "DINER", "EATERY", "TAQUERIA", "BBQ", "BURGER", "WINGS", "NOODLE", "RAMEN", "PHO ", "THAI", "DELI", "BAKERY", "CANTINA", "BREWING", "TAVERN", "PUB "},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bCAFE\b`),
				regexp.MustCompile(`(?i)\bTACOS?\b`),
				regexp.MustCompile(`(?i)\bPIZZ`),
			},
		},
		{
			Category: CategoryGroceries,
			Keywords: []string{"MARKET", "FOODS", "SUPERMARKET", "FARMERS", "BUTCHER", "PRODUCE"},
			Patterns: []*regexp.Regexp{regexp.MustCompile(`(?i)\bMKT\b`)},
		},
		{
			Category: CategoryGas,
			Keywords: []string{"FUEL", "PETRO", "GAS STATION", "GASOLINE"},
			Patterns: []*regexp.Regexp{regexp.MustCompile(`(?i)\bGAS\b`), regexp.MustCompile(`(?i)\bOIL\b`)},
		},
		{
			Category: CategoryCoffeeTea,
			Keywords: []string{"ESPRESSO", "ROASTER", "LATTE", "TEA "},
			Patterns: []*regexp.Regexp{regexp.MustCompile(`(?i)\bCOFFEE\b`)},
		},
		{
			Category: CategoryParking,
			Keywords: []string{"PARK ", "METER", "VALET"},
			Patterns: []*regexp.Regexp{regexp.MustCompile(`(?i)\bPKG\b`)},
		},
		{
			Category: CategoryTransportation,
			Keywords: []string{"TAXI", "CAB ", "RAIL", "BUS "},
		},
		{
			Category: CategoryShopping,
			Keywords: []string{"STORE", "SHOP", "OUTLET", "BOUTIQUE", "MALL"},
		},
		{
			Category: CategoryEntertainment,
			Keywords: []string{"THEATER", "THEATRE", "MUSEUM", "ARCADE", "GOLF"},
		},
		{
			Category: CategoryUtilities,
			Keywords: []string{"UTILITY", "UTILITIES", "POWER", "ENERGY", "WIRELESS"},
		},
		{
			Category: CategoryHealth,
			Keywords: []string{"PHARM", "DR ", "HEALTH", "LABS"},
		},
	}
}

var (
	// POS terminals used mostly by restaurants and cafes.
	foodPOSPattern = regexp.MustCompile(`(?i)^(TST\*|TST \*|SQ \*|SQ\*|TOAST\b|CLV\*|SP \*)`)
	// A food word followed by a store number, e.g. "TAQUERIA EL SOL #12".
	foodStorePattern = regexp.MustCompile(`(?i)\b(FOOD|EATS|CHICKEN|GRILL|CAFE|TACO|PIZZA|BURRITO)\b.*#?\s*\d{2,}\s*$`)
	// A station word followed by a store number, e.g. "QUICK STOP FUEL 0042".
	gasStorePattern = regexp.MustCompile(`(?i)\b(STATION|FUEL|GAS|PETRO|STOP|MART)\b.*#?\s*\d{3,}\s*$`)
)

// LooksLikeFood applies the generic POS-prefix and store-number heuristics.
func LooksLikeFood(upperDesc string) bool {
	return foodPOSPattern.MatchString(upperDesc) || foodStorePattern.MatchString(upperDesc)
}

// LooksLikeGas applies the generic station/store-number heuristic.
func LooksLikeGas(upperDesc string) bool {
	return gasStorePattern.MatchString(upperDesc)
}
