package domain

// Field length limits shared by input validation and the database schema.
const (
	UsernameMaxLength       = 150
	EmailMaxLength          = 254
	ProjectNameMaxLength    = 100
	DescriptionMaxLength    = 1000
	ModelDataNameMaxLength  = 100
	ModelTypeMaxLength      = 100
	AnnotationTypeMaxLength = 100
	LabelNameMaxLength      = 100
	FileFormatMaxLength     = 10
)

// The two file slots of a ModelData accept exactly these upload names.
const (
	BaseFileName       = "baseFile.zip"
	AnnotationFileName = "annotationFile.zip"
)
