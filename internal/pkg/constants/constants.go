package constants

// 协作方服务名，用于 Nacos 服务发现。
const (
	ClinicalCoreService  = "clinical-core-service"
	NutritionCalcService = "nutrition-calc-service"
)

// 临床核心(CRUD 后端)的资源路径。
const (
	PatientRecordPath      = "/api/patient_records"
	ClinicalEncounterPath  = "/api/clinical_encounters"
	EncounterHistoryPath   = "/api/encounter_histories"
	FollowUpVisitPath      = "/api/followup_visits"
	EncounterNotePath      = "/api/encounter_notes"
	BodyMeasurementPath    = "/api/body_measurements"
	VitalSignsPath         = "/api/vital_signs"
	NutritionalStatusPath  = "/api/nutritional_statuses"
	BreastfeedingCheckPath = "/api/breastfeeding_checks"
	DisabilityLinkPath     = "/api/disability_links"
	DispensationPath       = "/api/medicine_dispensations"
	SupplementLinkPath     = "/api/supplement_links"
	InventoryItemPath      = "/api/inventory_items"
	StockTransactionPath   = "/api/stock_transactions"

	NutritionCalcPath = "/api/nutrition_calculations"
)

// Kafka 主题。
const (
	ReviewQueueTopic = "encounter-review-queue"
)
