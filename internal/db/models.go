package db

import "time"

// Load maps loads: a shipment offer extracted from a channel message.
type Load struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`

	Origin               string  `gorm:"column:origin;not null;default:''"`
	Destination          string  `gorm:"column:destination;not null;default:''"`
	OriginNorm           string  `gorm:"column:origin_norm;not null;default:'';index"`
	DestinationNorm      string  `gorm:"column:destination_norm;not null;default:'';index"`
	OriginCityID         *int64  `gorm:"column:origin_city_id;index"`
	OriginCountryID      *int64  `gorm:"column:origin_country_id;index"`
	DestinationCityID    *int64  `gorm:"column:destination_city_id;index"`
	DestinationCountryID *int64  `gorm:"column:destination_country_id;index"`
	Distance             *int64  `gorm:"column:distance"`
	DistanceSeconds      *int64  `gorm:"column:distance_seconds"`
	IsLocalLoad          bool    `gorm:"column:is_local_load;not null;default:false"`
	CargoType            *string `gorm:"column:cargo_type"`
	CargoType2           *string `gorm:"column:cargo_type2"`

	Weight            *float64   `gorm:"column:weight"`
	Volume            *float64   `gorm:"column:volume"`
	Price             *int64     `gorm:"column:price"`
	Prepayment        *int64     `gorm:"column:prepayment"`
	PaymentType       *string    `gorm:"column:payment_type"`
	Goods             *string    `gorm:"column:goods"`
	GoodsNorm         *string    `gorm:"column:goods_norm"`
	GoodID            *int64     `gorm:"column:good_id"`
	LoadReadyDate     *time.Time `gorm:"column:load_ready_date"`
	IsRefrigerated    bool       `gorm:"column:is_refrigerated;not null;default:false"`
	LoadingSide       *string    `gorm:"column:loading_side"`
	CustomsLocation   *string    `gorm:"column:customs_location"`
	IsHazardous       bool       `gorm:"column:is_hazardous;not null;default:false"`
	IsDagruz          bool       `gorm:"column:is_dagruz;not null;default:false"`
	RequiredTrucks    *int       `gorm:"column:required_trucks"`
	Phone             *string    `gorm:"column:phone;index"`
	SenderID          *int64     `gorm:"column:sender_id;index"`
	OwnerID           *int64     `gorm:"column:owner_id;index"`
	IsLikelyOwner     bool       `gorm:"column:is_likely_owner;not null;default:false"`
	Channel           string     `gorm:"column:channel;not null;default:'';index"`
	MessageID         *int64     `gorm:"column:message_id"`
	URL               string     `gorm:"column:url;not null;default:''"`
	DuplicateURLs     []string   `gorm:"column:duplicate_urls;serializer:json"`
	PublishedAt       time.Time  `gorm:"column:published_at;not null;index"`
	Description       string     `gorm:"column:description;not null;default:''"`
	Language          string     `gorm:"column:language;not null;default:'und'"`
	TextHash          string     `gorm:"column:text_hash;not null;default:'';index"`
	ParamsHash        *string    `gorm:"column:params_hash"`
	NoPhoneHash       string     `gorm:"column:no_phone_hash;not null;default:'';index"`
	DuplicationCount  int        `gorm:"column:duplication_counter;not null;default:0"`
	DiffPhoneDupCount int        `gorm:"column:duplication_counter_different_phone;not null;default:0"`
	OpenMessageCount  int        `gorm:"column:open_message_counter;not null;default:0"`
	ExpirationCount   int        `gorm:"column:expiration_button_counter;not null;default:0"`
	IsArchived        bool       `gorm:"column:is_archived;not null;default:false;index"`
	IsDeleted         bool       `gorm:"column:is_deleted;not null;default:false"`
	DeletedAt         *time.Time `gorm:"column:deleted_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;not null"`
}

func (Load) TableName() string { return "loads" }

// Vehicle maps vehicles: a vehicle availability offer.
type Vehicle struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`

	Origin                string   `gorm:"column:origin;not null;default:''"`
	OriginNorm            string   `gorm:"column:origin_norm;not null;default:'';index"`
	OriginCityID          *int64   `gorm:"column:origin_city_id;index"`
	OriginCountryID       *int64   `gorm:"column:origin_country_id;index"`
	Destinations          []string `gorm:"column:destinations;serializer:json"`
	DestinationCityIDs    []int64  `gorm:"column:destination_city_ids;serializer:json"`
	DestinationCountryIDs []int64  `gorm:"column:destination_country_ids;serializer:json"`

	CargoType          *string    `gorm:"column:cargo_type"`
	CargoType2         *string    `gorm:"column:cargo_type2"`
	Weight             *float64   `gorm:"column:weight"`
	Volume             *float64   `gorm:"column:volume"`
	AvailableTrucks    *int       `gorm:"column:available_trucks"`
	IsHazardous        bool       `gorm:"column:is_hazardous;not null;default:false"`
	IsDagruz           bool       `gorm:"column:is_dagruz;not null;default:false"`
	Phone              *string    `gorm:"column:phone;index"`
	SenderID           *int64     `gorm:"column:sender_id;index"`
	OwnerID            *int64     `gorm:"column:owner_id"`
	IsLikelyDispatcher bool       `gorm:"column:is_likely_dispatcher;not null;default:false"`
	Channel            string     `gorm:"column:channel;not null;default:'';index"`
	MessageID          *int64     `gorm:"column:message_id"`
	URL                string     `gorm:"column:url;not null;default:''"`
	PublishedAt        time.Time  `gorm:"column:published_at;not null;index"`
	Description        string     `gorm:"column:description;not null;default:''"`
	Language           string     `gorm:"column:language;not null;default:'und'"`
	TextHash           string     `gorm:"column:text_hash;not null;default:''"`
	ParamsHash         *string    `gorm:"column:params_hash"`
	DuplicationCount   int        `gorm:"column:duplication_counter;not null;default:0"`
	OpenMessageCount   int        `gorm:"column:open_message_counter;not null;default:0"`
	InvalidCount       int        `gorm:"column:invalid_button_counter;not null;default:0"`
	IsArchived         bool       `gorm:"column:is_archived;not null;default:false;index"`
	IsDeleted          bool       `gorm:"column:is_deleted;not null;default:false"`
	DeletedAt          *time.Time `gorm:"column:deleted_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;not null"`
}

func (Vehicle) TableName() string { return "vehicles" }

// Channel maps channels: a crawl source and its checkpoint.
type Channel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Name          string     `gorm:"column:name;not null;uniqueIndex"`
	Title         *string    `gorm:"column:title"`
	Session       string     `gorm:"column:session;not null;default:'main'"`
	LastMessageID string     `gorm:"column:last_message_id;not null;default:''"`
	CrawlLoads    bool       `gorm:"column:crawl_loads;not null;default:false"`
	CrawlVehicles bool       `gorm:"column:crawl_vehicles;not null;default:false"`
	Disabled      bool       `gorm:"column:disabled;not null;default:false"`
	CrawledAt     *time.Time `gorm:"column:crawled_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;not null"`
}

func (Channel) TableName() string { return "channels" }

// CrawlRun maps crawl_runs: one channel pass.
type CrawlRun struct {
	ID              string     `gorm:"column:id;primaryKey"`
	Channel         string     `gorm:"column:channel;not null;index"`
	Status          string     `gorm:"column:status;not null;default:'running'"`
	StartedAt       time.Time  `gorm:"column:started_at;not null"`
	FinishedAt      *time.Time `gorm:"column:finished_at"`
	MessagesFetched int        `gorm:"column:messages_fetched;not null;default:0"`
	MessagesKept    int        `gorm:"column:messages_kept;not null;default:0"`
	LoadsSaved      int        `gorm:"column:loads_saved;not null;default:0"`
	VehiclesSaved   int        `gorm:"column:vehicles_saved;not null;default:0"`
	Checkpoint      string     `gorm:"column:checkpoint;not null;default:''"`
	ErrorMessage    *string    `gorm:"column:error_message"`
}

func (CrawlRun) TableName() string { return "crawl_runs" }

type City struct {
	ID        int64    `gorm:"column:id;primaryKey"`
	Name      string   `gorm:"column:name;not null"`
	Variants  []string `gorm:"column:variants;serializer:json"`
	CountryID int64    `gorm:"column:country_id;not null;index"`
	ParentID  *int64   `gorm:"column:parent_id;index"`
	Lat       *float64 `gorm:"column:lat"`
	Lng       *float64 `gorm:"column:lng"`
}

func (City) TableName() string { return "cities" }

type Country struct {
	ID       int64    `gorm:"column:id;primaryKey"`
	Name     string   `gorm:"column:name;not null"`
	Variants []string `gorm:"column:variants;serializer:json"`
	ParentID *int64   `gorm:"column:parent_id;index"`
}

func (Country) TableName() string { return "countries" }

type Good struct {
	ID       int64    `gorm:"column:id;primaryKey"`
	Name     string   `gorm:"column:name;not null"`
	Variants []string `gorm:"column:variants;serializer:json"`
}

func (Good) TableName() string { return "goods" }

// Sender maps senders: an upstream account with its observed phones.
type Sender struct {
	ID                 int64     `gorm:"column:id;primaryKey;autoIncrement:false"`
	Username           *string   `gorm:"column:username"`
	FirstName          *string   `gorm:"column:first_name"`
	LastName           *string   `gorm:"column:last_name"`
	Phone              *string   `gorm:"column:phone"`
	OtherPhones        []string  `gorm:"column:other_phones;serializer:json"`
	LoadSearchLimit    int       `gorm:"column:load_search_limit;not null;default:20"`
	VehicleSearchLimit int       `gorm:"column:vehicle_search_limit;not null;default:2"`
	CreatedAt          time.Time `gorm:"column:created_at;not null"`
	UpdatedAt          time.Time `gorm:"column:updated_at;not null"`
}

func (Sender) TableName() string { return "senders" }

// MarkedAd maps marked_ads: a user's "expired"/"invalid" mark on an ad.
type MarkedAd struct {
	UserID    int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	AdKind    string    `gorm:"column:ad_kind;primaryKey"`
	AdID      int64     `gorm:"column:ad_id;primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (MarkedAd) TableName() string { return "marked_ads" }

type Spammer struct {
	SenderID  int64     `gorm:"column:sender_id;primaryKey;autoIncrement:false"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (Spammer) TableName() string { return "spammers" }

type SpamWord struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Word string `gorm:"column:word;not null;uniqueIndex"`
}

func (SpamWord) TableName() string { return "spam_words" }

type DistanceMatrix struct {
	OriginCityID      int64 `gorm:"column:origin_city_id;primaryKey;autoIncrement:false"`
	DestinationCityID int64 `gorm:"column:destination_city_id;primaryKey;autoIncrement:false"`
	DistanceMeters    int64 `gorm:"column:distance_meters;not null"`
	DurationSeconds   int64 `gorm:"column:duration_seconds;not null;default:0"`
}

func (DistanceMatrix) TableName() string { return "distance_matrix" }

// KiloPriceStatistic maps statistics_load_kilo_prices, one row per day and route.
type KiloPriceStatistic struct {
	Date              string  `gorm:"column:date;primaryKey"`
	OriginCityID      int64   `gorm:"column:origin_city_id;primaryKey;autoIncrement:false"`
	DestinationCityID int64   `gorm:"column:destination_city_id;primaryKey;autoIncrement:false"`
	Average           float64 `gorm:"column:average;not null"`
	Median            float64 `gorm:"column:median;not null"`
	Max               float64 `gorm:"column:max;not null"`
	Min               float64 `gorm:"column:min;not null"`
	Count             int     `gorm:"column:count;not null"`
}

func (KiloPriceStatistic) TableName() string { return "statistics_load_kilo_prices" }

func autoMigrateModels() []any {
	return []any{
		&Load{},
		&Vehicle{},
		&Channel{},
		&CrawlRun{},
		&City{},
		&Country{},
		&Good{},
		&Sender{},
		&MarkedAd{},
		&Spammer{},
		&SpamWord{},
		&DistanceMatrix{},
		&KiloPriceStatistic{},
	}
}
