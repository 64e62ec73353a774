package booking

// Guest is the lead guest for a room or the whole booking.
type Guest struct {
	FirstName string `json:"first_name" dynamodbav:"first_name" bson:"first_name" validate:"required"`
	LastName  string `json:"last_name" dynamodbav:"last_name" bson:"last_name" validate:"required"`
	Email     string `json:"email,omitempty" dynamodbav:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty" dynamodbav:"phone,omitempty" bson:"phone,omitempty"`
}

// Room is one selected room rate. RateKey is the raw supplier key (tokens are decoded before storage).
type Room struct {
	RateKey        string   `json:"rate_key" dynamodbav:"rate_key" bson:"rate_key" validate:"required"`
	RoomIdentifier int      `json:"room_identifier,omitempty" dynamodbav:"room_identifier,omitempty" bson:"room_identifier,omitempty"`
	Adults         int      `json:"adults" dynamodbav:"adults" bson:"adults" validate:"min=1"`
	Children       int      `json:"children,omitempty" dynamodbav:"children,omitempty" bson:"children,omitempty" validate:"min=0"`
	Net            *float64 `json:"net,omitempty" dynamodbav:"net,omitempty" bson:"net,omitempty"`
	Gross          *float64 `json:"gross,omitempty" dynamodbav:"gross,omitempty" bson:"gross,omitempty"`
	Currency       string   `json:"currency,omitempty" dynamodbav:"currency,omitempty" bson:"currency,omitempty"`
	Guests         []Guest  `json:"guests,omitempty" dynamodbav:"guests,omitempty" bson:"guests,omitempty" validate:"dive"`
}

// Service is a flat-priced add-on (transfer, excursion, insurance, flight).
type Service struct {
	Code     string  `json:"code" dynamodbav:"code" bson:"code" validate:"required"`
	Name     string  `json:"name,omitempty" dynamodbav:"name,omitempty" bson:"name,omitempty"`
	Total    float64 `json:"total" dynamodbav:"total" bson:"total" validate:"gte=0"`
	Currency string  `json:"currency,omitempty" dynamodbav:"currency,omitempty" bson:"currency,omitempty"`
}

// Payload is the full booking request kept on a pending payment and replayed against the supplier.
type Payload struct {
	HotelCode  string    `json:"hotel_code" dynamodbav:"hotel_code" bson:"hotel_code" validate:"required"`
	HotelName  string    `json:"hotel_name,omitempty" dynamodbav:"hotel_name,omitempty" bson:"hotel_name,omitempty"`
	SessionID  string    `json:"session_id,omitempty" dynamodbav:"session_id,omitempty" bson:"session_id,omitempty"`
	CheckIn    string    `json:"check_in" dynamodbav:"check_in" bson:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut   string    `json:"check_out" dynamodbav:"check_out" bson:"check_out" validate:"required,datetime=2006-01-02"`
	Currency   string    `json:"currency" dynamodbav:"currency" bson:"currency" validate:"required,len=3"`
	Holder     Guest     `json:"holder" dynamodbav:"holder" bson:"holder" validate:"required"`
	Rooms      []Room    `json:"rooms" dynamodbav:"rooms" bson:"rooms" validate:"required,min=1,dive"`
	Transfers  []Service `json:"transfers,omitempty" dynamodbav:"transfers,omitempty" bson:"transfers,omitempty" validate:"dive"`
	Excursions []Service `json:"excursions,omitempty" dynamodbav:"excursions,omitempty" bson:"excursions,omitempty" validate:"dive"`
	Insurance  *Service  `json:"insurance,omitempty" dynamodbav:"insurance,omitempty" bson:"insurance,omitempty"`
	Flights    []Service `json:"flights,omitempty" dynamodbav:"flights,omitempty" bson:"flights,omitempty" validate:"dive"`
	Remark     string    `json:"remark,omitempty" dynamodbav:"remark,omitempty" bson:"remark,omitempty"`
}

// RoomResult is the supplier's per-room confirmation.
type RoomResult struct {
	RateKey string `json:"rate_key" dynamodbav:"rate_key" bson:"rate_key"`
	Status  string `json:"status" dynamodbav:"status" bson:"status"`
}

// Result is what the supplier returns for a confirmed booking.
type Result struct {
	Reference       string       `json:"reference" dynamodbav:"reference" bson:"reference"`
	SupplierRef     string       `json:"supplier_reference,omitempty" dynamodbav:"supplier_reference,omitempty" bson:"supplier_reference,omitempty"`
	Status          string       `json:"status" dynamodbav:"status" bson:"status"`
	TotalNet        float64      `json:"total_net,omitempty" dynamodbav:"total_net,omitempty" bson:"total_net,omitempty"`
	Currency        string       `json:"currency,omitempty" dynamodbav:"currency,omitempty" bson:"currency,omitempty"`
	Rooms           []RoomResult `json:"rooms,omitempty" dynamodbav:"rooms,omitempty" bson:"rooms,omitempty"`
	CreatedAtSource string       `json:"created_at_source,omitempty" dynamodbav:"created_at_source,omitempty" bson:"created_at_source,omitempty"`
}
